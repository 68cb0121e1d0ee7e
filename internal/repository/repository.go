// Package repository initializes and opens backup repositories through the
// storage contract.
//
// A repository holds one config object sealed with a random master key, and
// one or more key files under keys/ that seal the master key with a
// password-derived key.
package repository

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/r2d2/r2d2/internal/adapter"
	"github.com/r2d2/r2d2/internal/apperr"
	"github.com/r2d2/r2d2/internal/compress"
	"github.com/r2d2/r2d2/internal/crypto"
	"github.com/r2d2/r2d2/internal/logging"
	"github.com/r2d2/r2d2/internal/progress"
	"github.com/r2d2/r2d2/pkg/models"
)

// Version is the repository format version written by Init
const Version = 2

// Options configures Init
type Options struct {
	KDF              crypto.KDFParams
	CompressionLevel int
}

// DefaultOptions returns the options used by the CLI
func DefaultOptions() Options {
	return Options{
		KDF:              crypto.DefaultKDFParams,
		CompressionLevel: compress.DefaultLevel,
	}
}

// Repository is an opened repository
type Repository struct {
	be     adapter.WriteBackend
	enc    *crypto.Encryptor
	comp   *compress.Compressor
	config models.RepositoryConfig
	keyID  models.ID
}

// Init creates a repository in an empty backend
func Init(be adapter.WriteBackend, password string, opts Options) (*Repository, error) {
	if password == "" {
		return nil, apperr.User("password must not be empty")
	}

	existing, err := be.ListWithSize(models.FileTypeConfig)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, apperr.User("Config file already exists. Repository at {location} is already initialized.").
			With("location", be.Location())
	}

	master, err := crypto.NewMasterKey()
	if err != nil {
		return nil, apperr.Internal("failed to generate master key", err)
	}
	kf, err := crypto.SealKeyFile(master, password, opts.KDF)
	if err != nil {
		return nil, apperr.Internal("failed to seal key", err)
	}
	kfData, err := json.Marshal(kf)
	if err != nil {
		return nil, apperr.Internal("failed to encode key file", err)
	}

	keyID := models.HashID(kfData)
	if err := be.WriteBytes(models.FileTypeKey, keyID, false, kfData); err != nil {
		return nil, err
	}

	repo, err := newRepository(be, master, opts.CompressionLevel)
	if err != nil {
		return nil, err
	}
	repo.keyID = keyID
	repo.config = models.RepositoryConfig{
		Version:          Version,
		ID:               models.RandomID(),
		ChunkerPoly:      "0x" + models.RandomID().Hex()[:14],
		CompressionLevel: opts.CompressionLevel,
	}

	if err := repo.writeConfig(); err != nil {
		return nil, err
	}

	logging.Info("repository initialized",
		logging.String("id", repo.config.ID.Hex()),
		logging.String("location", be.Location()))
	return repo, nil
}

// Open unlocks a repository with password
func Open(be adapter.WriteBackend, password string) (*Repository, error) {
	cfgs, err := be.ListWithSize(models.FileTypeConfig)
	if err != nil {
		return nil, err
	}
	if len(cfgs) == 0 {
		return nil, apperr.User("No repository config file found at {location}. Run `r2d2 init` first.").
			With("location", be.Location())
	}

	keys, err := be.ListWithSize(models.FileTypeKey)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, apperr.User("repository has no keys")
	}

	for _, k := range keys {
		data, err := be.ReadFull(models.FileTypeKey, k.ID)
		if err != nil {
			return nil, err
		}

		var kf models.KeyFile
		if err := json.Unmarshal(data, &kf); err != nil {
			logging.Warn("skipping unreadable key file", logging.String("id", k.ID.Short()), logging.Err(err))
			continue
		}

		master, err := crypto.OpenKeyFile(&kf, password)
		if errors.Is(err, crypto.ErrWrongPassword) {
			continue
		}
		if err != nil {
			logging.Warn("skipping key file", logging.String("id", k.ID.Short()), logging.Err(err))
			continue
		}

		repo, err := newRepository(be, master, compress.DefaultLevel)
		if err != nil {
			return nil, err
		}
		repo.keyID = k.ID
		if err := repo.readConfig(); err != nil {
			return nil, err
		}
		return repo, nil
	}

	return nil, apperr.User("wrong password: no key file could be opened")
}

func newRepository(be adapter.WriteBackend, master []byte, level int) (*Repository, error) {
	enc, err := crypto.NewEncryptorFromKey(master)
	if err != nil {
		return nil, apperr.Internal("invalid master key", err)
	}
	comp, err := compress.New(level)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "invalid compression level", err)
	}
	return &Repository{be: be, enc: enc, comp: comp}, nil
}

func (r *Repository) writeConfig() error {
	data, err := json.Marshal(r.config)
	if err != nil {
		return apperr.Internal("failed to encode config", err)
	}
	sealed, err := r.seal(data)
	if err != nil {
		return err
	}
	return r.be.WriteBytes(models.FileTypeConfig, models.ID{}, false, sealed)
}

// seal compresses and encrypts data with the master key
func (r *Repository) seal(data []byte) ([]byte, error) {
	sealed, err := r.enc.Encrypt(r.comp.Compress(data))
	if err != nil {
		return nil, apperr.Internal("failed to encrypt file", err)
	}
	return sealed, nil
}

func (r *Repository) readConfig() error {
	sealed, err := r.be.ReadFull(models.FileTypeConfig, models.ID{})
	if err != nil {
		return err
	}
	packed, err := r.enc.Decrypt(sealed)
	if err != nil {
		return apperr.Internal("failed to decrypt config", err)
	}
	data, err := r.comp.Decompress(packed)
	if err != nil {
		return apperr.Internal("failed to decompress config", err)
	}
	if err := json.Unmarshal(data, &r.config); err != nil {
		return apperr.Internal("failed to decode config", err)
	}
	return nil
}

// Config returns the repository config
func (r *Repository) Config() models.RepositoryConfig {
	return r.config
}

// KeyID returns the id of the key file used to open the repository
func (r *Repository) KeyID() models.ID {
	return r.keyID
}

// Location returns where the repository lives
func (r *Repository) Location() string {
	return r.be.Location()
}

// Stats counts files and bytes per file type. Progress is shown on bars,
// which may be nil.
func (r *Repository) Stats(bars *progress.Bars) ([]models.RepositoryStats, error) {
	if bars == nil {
		bars = progress.NoBars()
	}
	p := bars.Counter("scanning repository")
	p.SetLength(uint64(len(models.AllFileTypes)))

	stats := make([]models.RepositoryStats, 0, len(models.AllFileTypes))
	for _, tpe := range models.AllFileTypes {
		p.SetTitle(tpe.String())
		list, err := r.be.ListWithSize(tpe)
		if err != nil {
			return nil, err
		}
		p.Inc(1)

		s := models.RepositoryStats{Type: tpe, TypeName: tpe.String(), Count: len(list)}
		for _, f := range list {
			s.TotalSize += int64(f.Size)
		}
		stats = append(stats, s)
	}
	p.SetTitle("")
	p.Finish()
	return stats, nil
}

// Snapshots lists snapshot files sorted by id
func (r *Repository) Snapshots() ([]models.IDWithSize, error) {
	list, err := r.be.ListWithSize(models.FileTypeSnapshot)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID.Hex() < list[j].ID.Hex() })
	return list, nil
}

// Snapshot loads the summary of one snapshot
func (r *Repository) Snapshot(id models.ID) (*models.SnapshotSummary, error) {
	data, err := r.LoadFile(models.FileTypeSnapshot, id)
	if err != nil {
		return nil, err
	}
	var snap models.SnapshotSummary
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, apperr.Internal("failed to decode snapshot", err).With("id", id.Hex())
	}
	snap.ID = id
	return &snap, nil
}

// LoadFile reads and opens a sealed file
func (r *Repository) LoadFile(tpe models.FileType, id models.ID) ([]byte, error) {
	sealed, err := r.be.ReadFull(tpe, id)
	if err != nil {
		return nil, err
	}
	packed, err := r.enc.Decrypt(sealed)
	if err != nil {
		return nil, apperr.Internal("failed to decrypt file", err).With("id", id.Hex())
	}
	return r.comp.Decompress(packed)
}

// Close releases compressor resources
func (r *Repository) Close() error {
	return r.comp.Close()
}
