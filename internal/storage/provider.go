// Package storage defines the vault file-system abstraction.
package storage

import "time"

// NoteMeta describes one note file in the vault.
type NoteMeta struct {
	// Path is relative to the vault root with "/" separators.
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the read side of a vault.
type Provider interface {
	// Root returns the absolute vault directory.
	Root() string
	// List returns metadata for every visible .md file under dir (relative to vault root).
	List(dir string) ([]NoteMeta, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Tree returns the folder hierarchy of visible notes.
	Tree() (*Node, error)
}
