package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/artpar/ondemand/ports"
)

// Record is one stored artifact pair.
type Record struct {
	Name      string    `gorm:"primaryKey;size:63;column:name"`
	Model     string    `gorm:"type:text;not null;column:model"`
	API       string    `gorm:"type:text;not null;column:api"`
	CreatedAt time.Time `gorm:"autoCreateTime;column:created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;column:updated_at"`
}

// TableName implements gorm's tabler.
func (Record) TableName() string {
	return "_ondemand_artifacts"
}

// ManifestEntry is one line of the bootstrap manifest.
type ManifestEntry struct {
	Seq       int64     `gorm:"primaryKey;autoIncrement;column:seq"`
	Name      string    `gorm:"size:63;not null;column:name"`
	CreatedAt time.Time `gorm:"autoCreateTime;column:created_at"`
}

// TableName implements gorm's tabler.
func (ManifestEntry) TableName() string {
	return "_ondemand_manifest"
}

// GormOptions selects the database used for artifacts.
type GormOptions struct {
	Driver string  // sqlite, postgres or mysql
	DSN    string  // used when Conn is nil
	Conn   *sql.DB // share an existing pool (sqlite or postgres)
}

// OpenGorm opens a gorm session and migrates the artifact tables.
func OpenGorm(opts GormOptions) (*gorm.DB, error) {
	dialector, err := gormDialector(opts)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open artifact database: %w", err)
	}

	if err := db.AutoMigrate(&Record{}, &ManifestEntry{}); err != nil {
		return nil, fmt.Errorf("migrate artifact tables: %w", err)
	}
	return db, nil
}

func gormDialector(opts GormOptions) (gorm.Dialector, error) {
	switch strings.ToLower(opts.Driver) {
	case "sqlite", "sqlite3":
		if opts.Conn != nil {
			return &sqlite.Dialector{Conn: opts.Conn}, nil
		}
		return sqlite.Open(opts.DSN), nil
	case "postgres", "postgresql", "pg":
		if opts.Conn != nil {
			return postgres.New(postgres.Config{Conn: opts.Conn}), nil
		}
		return postgres.Open(opts.DSN), nil
	case "mysql":
		if opts.Conn != nil {
			return mysql.New(mysql.Config{Conn: opts.Conn}), nil
		}
		return mysql.Open(opts.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported artifact database driver %q", opts.Driver)
	}
}

// GormStore keeps artifacts as rows. Both parts are stored as YAML text.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store over an open gorm session.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Save upserts the artifact row and returns its locations.
func (s *GormStore) Save(ctx context.Context, a ports.Artifact) ([]string, error) {
	key, err := artifactKey(a.Key())
	if err != nil {
		return nil, err
	}

	model, err := yaml.Marshal(a.Model)
	if err != nil {
		return nil, fmt.Errorf("encode model artifact: %w", err)
	}
	api, err := yaml.Marshal(a.API)
	if err != nil {
		return nil, fmt.Errorf("encode api artifact: %w", err)
	}

	rec := Record{Name: key, Model: string(model), API: string(api)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Record
		res := tx.Where("name = ?", key).First(&existing)
		switch {
		case errors.Is(res.Error, gorm.ErrRecordNotFound):
			return tx.Create(&rec).Error
		case res.Error != nil:
			return res.Error
		default:
			return tx.Model(&existing).Updates(map[string]any{
				"model": rec.Model,
				"api":   rec.API,
			}).Error
		}
	})
	if err != nil {
		return nil, fmt.Errorf("save artifact %s: %w", key, err)
	}

	table := Record{}.TableName()
	return []string{
		table + "/" + key + "/" + ModelFile,
		table + "/" + key + "/" + APIFile,
	}, nil
}

// Load reads the artifact row for name.
func (s *GormStore) Load(ctx context.Context, name string) (ports.Artifact, error) {
	key, err := artifactKey(name)
	if err != nil {
		return ports.Artifact{}, err
	}

	var rec Record
	res := s.db.WithContext(ctx).Where("name = ?", key).First(&rec)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return ports.Artifact{}, fmt.Errorf("%w: %s", ports.ErrArtifactNotFound, key)
	}
	if res.Error != nil {
		return ports.Artifact{}, fmt.Errorf("load artifact %s: %w", key, res.Error)
	}

	var a ports.Artifact
	if err := yaml.Unmarshal([]byte(rec.Model), &a.Model); err != nil {
		return ports.Artifact{}, fmt.Errorf("decode model artifact %s: %w", key, err)
	}
	if rec.API != "" {
		if err := yaml.Unmarshal([]byte(rec.API), &a.API); err != nil {
			return ports.Artifact{}, fmt.Errorf("decode api artifact %s: %w", key, err)
		}
	}
	return a, nil
}

// Names lists stored artifact keys in sorted order.
func (s *GormStore) Names(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).Model(&Record{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return names, nil
}

// GormManifest keeps the manifest as an append-only table.
type GormManifest struct {
	db *gorm.DB
}

// NewGormManifest creates a manifest over an open gorm session.
func NewGormManifest(db *gorm.DB) *GormManifest {
	return &GormManifest{db: db}
}

// Append inserts a manifest row.
func (m *GormManifest) Append(ctx context.Context, name string) error {
	key, err := artifactKey(name)
	if err != nil {
		return err
	}
	if err := m.db.WithContext(ctx).Create(&ManifestEntry{Name: key}).Error; err != nil {
		return fmt.Errorf("append manifest: %w", err)
	}
	return nil
}

// Names returns manifest entries in insertion order.
func (m *GormManifest) Names(ctx context.Context) ([]string, error) {
	var names []string
	if err := m.db.WithContext(ctx).Model(&ManifestEntry{}).Order("seq").Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return names, nil
}
