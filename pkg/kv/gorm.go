package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntryModel is one stored key for a named profile.
type EntryModel struct {
	Profile   string    `gorm:"primaryKey;size:64"`
	Key       string    `gorm:"primaryKey;size:64"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (EntryModel) TableName() string { return "unibro_session_entries" }

// GormStore keeps session keys in Postgres, scoped by profile, for kiosk and
// lab machines that share one database.
type GormStore struct {
	db      *gorm.DB
	profile string
}

// NewGormStore opens the database and migrates the entries table.
func NewGormStore(dsn, profile string) (*GormStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("kv: database url is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return NewGormStoreFromDB(db, profile)
}

// NewGormStoreFromDB wraps an existing handle.
func NewGormStoreFromDB(db *gorm.DB, profile string) (*GormStore, error) {
	if err := db.AutoMigrate(&EntryModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = "default"
	}
	return &GormStore{db: db, profile: profile}, nil
}

func (s *GormStore) Get(ctx context.Context, key string) (string, error) {
	var model EntryModel
	err := s.db.WithContext(ctx).First(&model, "profile = ? AND key = ?", s.profile, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return model.Value, nil
}

func (s *GormStore) Set(ctx context.Context, key, value string) error {
	model := EntryModel{
		Profile:   s.profile,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("profile = ? AND key IN ?", s.profile, keys).
		Delete(&EntryModel{}).Error
}

// Close releases the database handle.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
