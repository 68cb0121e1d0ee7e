package models

import "fmt"

// FileType is the category of a file stored in a repository
type FileType int

const (
	FileTypeConfig FileType = iota
	FileTypeIndex
	FileTypeKey
	FileTypeSnapshot
	FileTypePack
)

// AllFileTypes lists every file type in the order they are reported
var AllFileTypes = []FileType{
	FileTypeConfig,
	FileTypeIndex,
	FileTypeKey,
	FileTypeSnapshot,
	FileTypePack,
}

// String returns the file type name
func (t FileType) String() string {
	switch t {
	case FileTypeConfig:
		return "config"
	case FileTypeIndex:
		return "index"
	case FileTypeKey:
		return "key"
	case FileTypeSnapshot:
		return "snapshot"
	case FileTypePack:
		return "pack"
	default:
		return fmt.Sprintf("filetype(%d)", int(t))
	}
}

// Dirname returns the directory (key prefix) the file type is stored under
func (t FileType) Dirname() string {
	switch t {
	case FileTypeConfig:
		return "config"
	case FileTypeIndex:
		return "index"
	case FileTypeKey:
		return "keys"
	case FileTypeSnapshot:
		return "snapshots"
	case FileTypePack:
		return "data"
	default:
		return t.String()
	}
}

// IsSingleton reports whether the type has exactly one file at a fixed key
func (t FileType) IsSingleton() bool {
	return t == FileTypeConfig
}
