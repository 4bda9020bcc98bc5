// Package textutil normalizes free-form names into tokens that are safe to
// use as object key segments.
package textutil
