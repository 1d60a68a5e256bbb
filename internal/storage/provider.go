// Package storage manages the app-private audio directory.
package storage

import "io"

// Provider is the interface for app-owned audio file operations. All paths
// are absolute.
type Provider interface {
	// Root returns the absolute path of the audio directory.
	Root() string
	// Allocate reserves a new, unused, time-derived file path with the given
	// extension. The file is not created.
	Allocate(ext string) (string, error)
	// Save atomically writes r into a newly allocated file and returns its path.
	Save(r io.Reader, ext string) (string, error)
	// Delete removes an app-owned file.
	Delete(path string) error
	// Owns reports whether path lies inside the audio directory.
	Owns(path string) bool
}
