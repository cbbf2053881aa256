// Package models defines core data structures for documents, passages, chat and training state.
package models

import "time"

// Document is an uploaded PDF and its metadata. Filename is the unique key.
type Document struct {
	Filename   string    `json:"filename" db:"filename"`
	Size       int64     `json:"size_bytes" db:"size"`
	Pages      int       `json:"pages" db:"pages"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
	Path       string    `json:"-" db:"path"`
}

// FileInfo is the wire shape of a document in /files and /upload responses.
// Size is human readable (e.g. "1.2 MiB"); SizeBytes is exact.
type FileInfo struct {
	Filename   string    `json:"filename"`
	Pages      int       `json:"pages"`
	Size       string    `json:"size"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}
