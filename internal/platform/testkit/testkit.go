// Package testkit holds assertions shared by the package tests
package testkit

import (
	"fmt"
	"strings"
	"testing"
)

// maxExcerpt bounds how much of a haystack a failure prints
const maxExcerpt = 2048

// MustPanic fails unless fn panics and returns the recovered value
func MustPanic(t *testing.T, fn func()) (r any) {
	t.Helper()
	defer func() {
		if r = recover(); r == nil {
			t.Fatalf("expected panic, got none")
		}
	}()
	fn()
	return nil
}

// MustNotPanic fails if fn panics
func MustNotPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("unexpected panic: %v", r)
		}
	}()
	fn()
}

// MustContain fails unless haystack contains needle, printing the tail of
// long haystacks such as captured logs
func MustContain(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in:\n%s", needle, excerpt(haystack))
	}
}

func excerpt(s string) string {
	if len(s) <= maxExcerpt {
		return s
	}
	return fmt.Sprintf("... (%d bytes elided)\n%s", len(s)-maxExcerpt, s[len(s)-maxExcerpt:])
}
