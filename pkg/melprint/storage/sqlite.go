package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/melprint/pkg/models"
)

const DefaultDBFile = "melprint.sqlite3"

const (
	insertBatchSize = 500
	// keeps "IN (...)" below SQLite's bound parameter limit
	lookupChunkSize = 900
)

// SQLite is a gorm backed index. Rows of the fingerprints table form the
// (track, token) relation; the tracks table maps caller ids to row ids.
type SQLite struct {
	DB *gorm.DB
	db *sql.DB
}

type Track struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	Name       string `gorm:"uniqueIndex:idx_track_name" json:"name"`
	TokenCount int    `json:"token_count"`
	CreatedAt  time.Time
}

type Fingerprint struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	Token   string `gorm:"index:idx_token;size:64" json:"token"`
	TrackID string `gorm:"type:varchar(36);index:idx_track" json:"track_id"`
	Offset  int    `json:"offset"`
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// a single writer avoids SQLITE_BUSY between concurrent enrollments
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Track{}, &Fingerprint{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &SQLite{DB: db, db: sqlDB}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert registers the track on first use and appends its fingerprints.
func (s *SQLite) Insert(ctx context.Context, trackID string, fps []models.Fingerprint) error {
	if err := ValidateTrackID(trackID); err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		track, err := registerTrack(tx, trackID)
		if err != nil {
			return err
		}

		rows := make([]Fingerprint, 0, min(len(fps), 1024))
		for _, fp := range fps {
			rows = append(rows, Fingerprint{Token: string(fp.Token), TrackID: track.ID, Offset: fp.Offset})
			if len(rows) >= 1000 {
				if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
					return fmt.Errorf("batch insert fingerprints: %w", err)
				}
				rows = rows[:0]
			}
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
				return fmt.Errorf("batch insert last fingerprints: %w", err)
			}
		}

		if err := tx.Model(track).Update("token_count", gorm.Expr("token_count + ?", len(fps))).Error; err != nil {
			return fmt.Errorf("updating token count: %w", err)
		}
		return nil
	})
}

func registerTrack(tx *gorm.DB, name string) (*Track, error) {
	var track Track
	err := tx.Where("name = ?", name).First(&track).Error
	if err == nil {
		return &track, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("querying existing track: %w", err)
	}

	track = Track{ID: uuid.NewString(), Name: name}
	if err := tx.Create(&track).Error; err != nil {
		return nil, fmt.Errorf("creating track: %w", err)
	}
	return &track, nil
}

type postingRow struct {
	Token   string
	Name    string
	FirstID uint
}

// Lookup returns the distinct track names per token, in first-insert order.
func (s *SQLite) Lookup(ctx context.Context, tokens []models.Token) (map[models.Token][]string, error) {
	out := make(map[models.Token][]string)
	for start := 0; start < len(tokens); start += lookupChunkSize {
		chunk := tokens[start:min(start+lookupChunkSize, len(tokens))]
		keys := make([]string, len(chunk))
		for i, tok := range chunk {
			keys[i] = string(tok)
		}

		var rows []postingRow
		err := s.DB.WithContext(ctx).
			Table("fingerprints AS f").
			Select("f.token AS token, t.name AS name, MIN(f.id) AS first_id").
			Joins("JOIN tracks AS t ON t.id = f.track_id").
			Where("f.token IN ?", keys).
			Group("f.token, t.name").
			Order("first_id").
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("querying fingerprints: %w", err)
		}
		for _, r := range rows {
			tok := models.Token(r.Token)
			out[tok] = append(out[tok], r.Name)
		}
	}
	return out, nil
}

func (s *SQLite) Track(ctx context.Context, trackID string) (*models.Track, error) {
	var track Track
	err := s.DB.WithContext(ctx).Where("name = ?", trackID).First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return toModel(track), nil
}

func (s *SQLite) Tracks(ctx context.Context) ([]models.Track, error) {
	var rows []Track
	if err := s.DB.WithContext(ctx).Order("rowid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	out := make([]models.Track, len(rows))
	for i, r := range rows {
		out[i] = *toModel(r)
	}
	return out, nil
}

// Remove deletes a track and all of its fingerprints.
func (s *SQLite) Remove(ctx context.Context, trackID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var track Track
		err := tx.Where("name = ?", trackID).First(&track).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTrackNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Where("track_id = ?", track.ID).Delete(&Fingerprint{}).Error; err != nil {
			return err
		}
		return tx.Delete(&track).Error
	})
}

// FingerprintCount returns the number of stored rows for a track.
func (s *SQLite) FingerprintCount(ctx context.Context, trackID string) (int, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&Fingerprint{}).
		Joins("JOIN tracks ON tracks.id = fingerprints.track_id").
		Where("tracks.name = ?", trackID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func toModel(t Track) *models.Track {
	return &models.Track{ID: t.Name, TokenCount: t.TokenCount, CreatedAt: t.CreatedAt}
}
