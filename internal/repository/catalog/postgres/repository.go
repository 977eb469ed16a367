package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/internal/repository/catalog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type movie struct {
	Id          string  `gorm:"column:id;primaryKey"`
	Title       string  `gorm:"column:title"`
	URL         string  `gorm:"column:url"`
	SubtitleURL *string `gorm:"column:subtitle_url"`
}

func (movie) TableName() string {
	return "movies"
}

// repo reads movies owned by the catalog service. It never writes.
type repo struct {
	db *gorm.DB
}

func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	return db, nil
}

func NewRepo(db *gorm.DB) *repo {
	return &repo{db: db}
}

func (r repo) GetMovie(ctx context.Context, movieId string) (catalog.Movie, error) {
	var m movie
	if err := r.db.WithContext(ctx).First(&m, "id = ?", movieId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return catalog.Movie{}, catalog.ErrMovieNotFound
		}
		return catalog.Movie{}, fmt.Errorf("failed to get movie: %w", err)
	}

	result := catalog.Movie{
		Id:    m.Id,
		Title: m.Title,
		URL:   m.URL,
	}
	if m.SubtitleURL != nil {
		result.SubtitleURL = *m.SubtitleURL
	}

	return result, nil
}
