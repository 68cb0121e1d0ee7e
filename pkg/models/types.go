package models

import "time"

// IDWithSize pairs a stored file with its length in bytes
type IDWithSize struct {
	ID   ID
	Size uint32
}

// UploadPart is one completed part of a multipart upload
type UploadPart struct {
	PartNumber int32  `json:"part_number"` // 1-based, contiguous
	Offset     int64  `json:"offset"`      // Byte offset in the source file
	Length     int64  `json:"length"`      // Bytes sent for this part
	ETag       string `json:"etag"`        // Integrity tag returned by the store
}

// RepositoryConfig is the singleton config object of a repository
type RepositoryConfig struct {
	Version          int    `json:"version"`
	ID               ID     `json:"id"`
	ChunkerPoly      string `json:"chunker_polynomial"`
	CompressionLevel int    `json:"compression"`
}

// KeyFile holds a master key sealed with a password-derived key
type KeyFile struct {
	Hostname string    `json:"hostname,omitempty"`
	Username string    `json:"username,omitempty"`
	Created  time.Time `json:"created"`
	KDF      string    `json:"kdf"` // argon2id
	Time     uint32    `json:"t"`
	Memory   uint32    `json:"m"` // KiB
	Threads  uint8     `json:"p"`
	Salt     []byte    `json:"salt"` // Base64 in JSON
	Data     []byte    `json:"data"` // Sealed master key
}

// RepositoryStats summarizes the files of one type in a repository
type RepositoryStats struct {
	Type      FileType `json:"-"`
	TypeName  string   `json:"type"`
	Count     int      `json:"count"`
	TotalSize int64    `json:"total_size"`
}

// SnapshotSummary is the part of a snapshot file shown in listings
type SnapshotSummary struct {
	ID       ID        `json:"-"`
	Time     time.Time `json:"time"`
	Hostname string    `json:"hostname,omitempty"`
	Username string    `json:"username,omitempty"`
	Paths    []string  `json:"paths"`
	Tags     []string  `json:"tags,omitempty"`
}
