package gallery

import (
	"context"
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"gallery-index/internal/apperr"
	"gallery-index/internal/cache"
	"gallery-index/internal/logging"
	"gallery-index/internal/metrics"
)

// Index is the part of the gallery index the invalidator clears.
type Index interface {
	DeleteAll(ctx context.Context) error
}

// Invalidator flushes the query cache and the index when the remote store
// announces a change.
type Invalidator struct {
	secret string
	cache  *cache.Cache
	index  Index
}

// NewInvalidator creates an Invalidator. secret is either the shared secret
// itself or a bcrypt hash of it. index may be nil.
func NewInvalidator(secret string, c *cache.Cache, index Index) *Invalidator {
	return &Invalidator{
		secret: secret,
		cache:  c,
		index:  index,
	}
}

// Refresh verifies signature and, when it matches, drops every cache entry
// and then every index row. Nothing changes on a mismatch. The index is not
// repopulated here.
func (inv *Invalidator) Refresh(ctx context.Context, signature string) error {
	if err := inv.verify(signature); err != nil {
		metrics.RefreshRequestsTotal.WithLabelValues("unauthorized").Inc()
		return err
	}

	flushed := inv.cache.InvalidateAll()

	if inv.index != nil {
		if err := inv.index.DeleteAll(ctx); err != nil {
			metrics.RefreshRequestsTotal.WithLabelValues("error").Inc()
			return &apperr.InternalError{Err: err}
		}
	}

	metrics.RefreshRequestsTotal.WithLabelValues("success").Inc()
	logging.Info("Cache refreshed: %d entries dropped, index cleared", flushed)
	return nil
}

func (inv *Invalidator) verify(signature string) error {
	if inv.secret == "" {
		return &apperr.AuthError{Reason: "webhook secret not configured"}
	}
	if signature == "" {
		return &apperr.AuthError{Reason: "missing signature"}
	}

	if isBcryptHash(inv.secret) {
		if err := bcrypt.CompareHashAndPassword([]byte(inv.secret), []byte(signature)); err != nil {
			return &apperr.AuthError{Reason: "signature mismatch"}
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(inv.secret), []byte(signature)) != 1 {
		return &apperr.AuthError{Reason: "signature mismatch"}
	}
	return nil
}

func isBcryptHash(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
