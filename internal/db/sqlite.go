package db

import (
	"errors"
	"fmt"

	"github.com/82flex/trollpatch/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sqlite is a persisted-asset store backed by a sqlite database.
type Sqlite struct {
	URL string

	db *gorm.DB
}

// NewSqlite creates a new Sqlite database.
func NewSqlite(path string) (Database, error) {
	if path == "" {
		return nil, fmt.Errorf("'path' is required")
	}
	return &Sqlite{
		URL: path,
	}, nil
}

// Connect connects to the database.
func (s *Sqlite) Connect() (err error) {
	s.db, err = gorm.Open(sqlite.Open(s.URL), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect sqlite database: %w", err)
	}
	return s.db.AutoMigrate(
		&model.App{},
		&model.Asset{},
	)
}

// SaveAssets records asset paths against an app identifier.
func (s *Sqlite) SaveAssets(identifier string, paths []string) error {
	var app model.App
	if err := s.db.Where(&model.App{Identifier: identifier}).
		FirstOrCreate(&app, &model.App{Identifier: identifier}).Error; err != nil {
		return err
	}
	existing := make(map[string]bool)
	var assets []model.Asset
	if err := s.db.Where("app_id = ?", app.ID).Find(&assets).Error; err != nil {
		return err
	}
	for _, a := range assets {
		existing[a.Path] = true
	}
	for _, path := range paths {
		if existing[path] {
			continue
		}
		if err := s.db.Create(&model.Asset{AppID: app.ID, Path: path}).Error; err != nil {
			return err
		}
	}
	return nil
}

// Assets returns the asset paths recorded for an app identifier.
func (s *Sqlite) Assets(identifier string) ([]string, error) {
	var app model.App
	if err := s.db.Preload("Assets").Where("identifier = ?", identifier).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	paths := make([]string, 0, len(app.Assets))
	for _, a := range app.Assets {
		paths = append(paths, a.Path)
	}
	return paths, nil
}

// Prune removes asset paths from an app's record.
func (s *Sqlite) Prune(identifier string, paths []string) error {
	var app model.App
	if err := s.db.Where("identifier = ?", identifier).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // nothing to prune
		}
		return err
	}
	if len(paths) == 0 {
		if err := s.db.Where("app_id = ?", app.ID).Delete(&model.Asset{}).Error; err != nil {
			return err
		}
		return s.db.Delete(&app).Error
	}
	return s.db.Where("app_id = ? AND path IN ?", app.ID, paths).Delete(&model.Asset{}).Error
}

// Close closes the database.
func (s *Sqlite) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
