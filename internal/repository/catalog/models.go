package catalog

import "errors"

var (
	ErrMovieNotFound = errors.New("movie not found")
)

type Movie struct {
	Id          string
	Title       string
	URL         string
	SubtitleURL string
}
