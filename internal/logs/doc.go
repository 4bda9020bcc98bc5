// Package logs reads the daemon log file for the CLI.
//
// Last returns the trailing lines of a file together with the byte offset
// that follows them; Follow keeps reading from an offset as the daemon
// appends. Both treat a missing file as empty so the CLI can wait for a
// daemon that has not written anything yet.
package logs
