package adapter

import (
	"github.com/r2d2/r2d2/pkg/models"
)

// ConfigKey is the fixed key of the repository config object
const ConfigKey = "config"

// Locate returns the object key for a file. Pack files fan out into 256
// directories by the first byte of their id.
func Locate(tpe models.FileType, id models.ID) string {
	hex := id.Hex()
	switch tpe {
	case models.FileTypeConfig:
		return ConfigKey
	case models.FileTypePack:
		return tpe.Dirname() + "/" + hex[:2] + "/" + hex
	default:
		return tpe.Dirname() + "/" + hex
	}
}

// listPrefix returns the directory listed when enumerating tpe
func listPrefix(tpe models.FileType) string {
	return tpe.Dirname() + "/"
}
