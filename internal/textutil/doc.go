// Package textutil turns arbitrary item identifiers into strings that are safe
// to use as path segments.
package textutil
