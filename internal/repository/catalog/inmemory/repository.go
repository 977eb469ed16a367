package inmemory

import (
	"context"
	"sync"

	"github.com/sharetube/watchparty/internal/repository/catalog"
)

// repo serves a fixed set of movies, for running without the catalog database.
type repo struct {
	movies map[string]catalog.Movie
	mu     sync.RWMutex
}

func NewRepo(movies ...catalog.Movie) *repo {
	r := &repo{movies: make(map[string]catalog.Movie, len(movies))}
	for _, m := range movies {
		r.movies[m.Id] = m
	}

	return r
}

func (r *repo) Add(m catalog.Movie) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.movies[m.Id] = m
}

func (r *repo) GetMovie(_ context.Context, movieId string) (catalog.Movie, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.movies[movieId]
	if !ok {
		return catalog.Movie{}, catalog.ErrMovieNotFound
	}

	return m, nil
}
