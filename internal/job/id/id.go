// Package id provides unique identifier generation for jobs.
package id

import "github.com/google/uuid"

// Prefix starts every generated job ID.
const Prefix = "stitch-"

// Generate creates a new unique job ID.
// Format: stitch-<uuid>
// Example: stitch-0b8e2f5c-3f0a-4c55-9a07-1f3d2b9c8e41
func Generate() string {
	return Prefix + uuid.NewString()
}

// Valid reports whether s has the shape of a generated ID.
func Valid(s string) bool {
	if len(s) <= len(Prefix) || s[:len(Prefix)] != Prefix {
		return false
	}
	_, err := uuid.Parse(s[len(Prefix):])
	return err == nil
}
