// Package catalog persists which data-source plugin instance owns which
// metric namespace, backed by the gorm models and migration pattern used
// throughout the rest of the module. A catalog entry's stored credentials
// are ChaCha20-Poly1305 sealed at rest and decrypted only when a plugin
// factory needs them to dial the backing store.
package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/flowmetrics/qpipe/database"
	"github.com/flowmetrics/qpipe/encryption"
)

// Entry is one catalog row: the binding a registered plugin instance
// advertises, plus its sealed connection credentials.
type Entry struct {
	database.BaseModel

	// Name is the plugin instance name the entry configures, matching the
	// name the runtime registers it under in the data-source manager.
	Name string `gorm:"uniqueIndex;size:128"`

	// MetricPattern, HAGroup, and Shard mirror datasource.Binding; the
	// catalog is the system of record that seeds that binding at startup.
	MetricPattern string `gorm:"size:256"`
	HAGroup       string `gorm:"size:128"`
	Shard         bool

	// Kind names the plugin factory this entry configures (e.g. "rest",
	// "mock"); the bootstrap wiring dispatches on it.
	Kind string `gorm:"size:64"`

	// Endpoint is the plugin's connection target (a base URL, a DSN, a
	// broker address), stored in the clear.
	Endpoint string `gorm:"size:512"`

	// SealedCredential holds the ChaCha20-Poly1305 sealed secret (an API
	// key, a password) this plugin needs, or empty if none is required.
	SealedCredential string `gorm:"type:text"`

	Enabled bool `gorm:"default:true"`
}

// TableName pins the table name against GORM's default pluralization so
// renaming the Go type doesn't silently migrate a new table.
func (Entry) TableName() string { return "datasource_catalog_entries" }

// Store is the catalog's persistence boundary: CRUD over Entry rows plus
// credential sealing/unsealing.
type Store struct {
	db     *database.DB
	cipher *encryption.ChaCha20Service
}

// NewStore returns a Store backed by db, sealing/unsealing credentials
// with cipher. A nil cipher is only valid for catalogs whose entries never
// carry a SealedCredential.
func NewStore(db *database.DB, cipher *encryption.ChaCha20Service) *Store {
	return &Store{db: db, cipher: cipher}
}

// Migrate creates or updates the catalog table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Entry{})
}

// Put inserts or updates the entry named entry.Name, sealing credential
// before it is persisted.
func (s *Store) Put(ctx context.Context, entry Entry, credential string) error {
	if credential != "" {
		if s.cipher == nil {
			return fmt.Errorf("catalog: cannot seal credential for %q, no cipher configured", entry.Name)
		}
		sealed, err := s.cipher.Encrypt(credential)
		if err != nil {
			return fmt.Errorf("catalog: seal credential for %q: %w", entry.Name, err)
		}
		entry.SealedCredential = sealed
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			UpdateAll: true,
		}).
		Create(&entry).Error
}

// List returns every enabled catalog entry, with credentials decrypted.
func (s *Store) List(ctx context.Context) ([]ResolvedEntry, error) {
	var rows []Entry
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("catalog: list entries: %w", err)
	}

	out := make([]ResolvedEntry, 0, len(rows))
	for _, row := range rows {
		resolved, err := s.resolve(row)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

// Get returns one entry by name, with its credential decrypted.
func (s *Store) Get(ctx context.Context, name string) (ResolvedEntry, error) {
	var row Entry
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		return ResolvedEntry{}, fmt.Errorf("catalog: get entry %q: %w", name, err)
	}
	return s.resolve(row)
}

func (s *Store) resolve(row Entry) (ResolvedEntry, error) {
	credential := ""
	if row.SealedCredential != "" {
		if s.cipher == nil {
			return ResolvedEntry{}, fmt.Errorf("catalog: entry %q has a sealed credential but no cipher is configured", row.Name)
		}
		plain, err := s.cipher.Decrypt(row.SealedCredential)
		if err != nil {
			return ResolvedEntry{}, fmt.Errorf("catalog: unseal credential for %q: %w", row.Name, err)
		}
		credential = plain
	}
	return ResolvedEntry{Entry: row, Credential: credential}, nil
}

// ResolvedEntry is a catalog Entry with its credential decrypted, ready to
// hand to a plugin factory.
type ResolvedEntry struct {
	Entry
	Credential string
}
