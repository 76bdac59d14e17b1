//go:build !appengine
// +build !appengine

// Package bytes provides zero-copy byte/string conversion for console
// command dispatch.
package bytes

import "unsafe"

// BytesToString converts a []byte to string without memory allocation.
// The returned string shares memory with the original slice.
//
// WARNING: The original []byte MUST NOT be modified after this call,
// as the string will reflect those changes (violating string immutability).
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}
