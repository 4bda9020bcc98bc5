// Package language maps the free-form language labels providers attach to
// voices ("English", "en-US", "Spanish (Mexico)") onto ISO 639-1 codes and
// display names, so catalog listings can be filtered by language.
package language
