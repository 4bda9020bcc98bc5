// Command avatarcast browses the provider catalog, generates avatar videos
// and exports finished renders to configured destinations.
//
// Commands talk to a running daemon (avatarcast serve) over its HTTP API when
// one answers on api_bind. Otherwise they assemble the runtime in-process,
// which restores finished jobs from the journal so they stay exportable.
package main
