// Package avatarapi is a thin, stateless HTTP adapter for the avatar video
// generation provider.
//
// The client builds requests for the four provider endpoints (avatar list,
// voice list, video generate, video status), decodes the `{data: {...}}`
// envelope, and classifies every failure with the services error markers:
// network faults, 408/429 and 5xx responses are ErrTransient, other 4xx
// responses are ErrProviderRejected, and any response missing an expected
// field is ErrMalformedResponse. Nothing is defaulted or guessed. Retries and
// backoff belong to callers; the client only paces outbound calls through a
// token bucket so bursts of polls never exceed the configured request rate.
package avatarapi
