package registry

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/pithecene-io/dbviz/types"
)

// SQLiteStore keeps artifacts in a local SQLite database through gorm.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// migrates the artifact table.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	if err := db.AutoMigrate(&artifactRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate registry database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, a *types.DerivedArtifact, overwrite bool) error {
	if err := Validate(a); err != nil {
		return err
	}
	rec, err := toRecord(a)
	if err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	if overwrite {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_item_path"}},
			UpdateAll: true,
		}).Create(&rec).Error
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&artifactRecord{}).Where("source_item_path = ?", a.SourceItemPath).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrExists, a.SourceItemPath)
		}
		return tx.Create(&rec).Error
	})
}

func (s *SQLiteStore) Get(ctx context.Context, sourceItemPath string) (*types.DerivedArtifact, error) {
	var rec artifactRecord
	err := s.db.WithContext(ctx).Where("source_item_path = ?", sourceItemPath).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sourceItemPath)
	}
	if err != nil {
		return nil, err
	}
	a, err := rec.toArtifact()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]types.DerivedArtifact, error) {
	var recs []artifactRecord
	if err := s.db.WithContext(ctx).Order("source_item_path").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]types.DerivedArtifact, 0, len(recs))
	for _, rec := range recs {
		a, err := rec.toArtifact()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sourceItemPath string) error {
	res := s.db.WithContext(ctx).Where("source_item_path = ?", sourceItemPath).Delete(&artifactRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sourceItemPath)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*SQLiteStore)(nil)
