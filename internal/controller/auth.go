package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sharetube/watchparty/pkg/authtoken"
)

var errUnauthorized = errors.New("unauthorized")

func (c controller) getToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}

	return strings.TrimSpace(token)
}

// authenticate returns the caller's identity, or nil when no verifier is configured.
func (c controller) authenticate(r *http.Request) (*authtoken.Identity, error) {
	if c.verifier == nil {
		return nil, nil
	}

	token := c.getToken(r)
	if token == "" {
		return nil, fmt.Errorf("%w: token was not provided", errUnauthorized)
	}

	identity, err := c.verifier.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUnauthorized, err)
	}

	return &identity, nil
}
