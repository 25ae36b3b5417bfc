// Package models contains data structures returned by the gateway API.
package models

import "time"

// Entry represents one filesystem entry with display metadata.
type Entry struct {
	Path          string    `json:"path"`
	Name          string    `json:"name"`
	IsDirectory   bool      `json:"isDirectory"`
	IsEmpty       bool      `json:"isEmpty,omitempty"`
	Size          int64     `json:"size"`
	FormattedSize string    `json:"formattedSize,omitempty"`
	ModTime       time.Time `json:"modTime,omitzero"`
	BlockSize     int64     `json:"blockSize,omitempty"`
}

// Listing is the response body for a directory listing.
type Listing struct {
	Path    string  `json:"path"`
	Entries []Entry `json:"entries"`
}

// RenameRequest is the request body for a rename operation.
type RenameRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// OpResult reports the boolean outcome of rename/delete/mkdirs.
type OpResult struct {
	Success bool `json:"success"`
}
