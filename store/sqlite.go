package store

import (
	"context"
	"time"

	"github.com/habedi/tokenguard/auth"
	"github.com/habedi/tokenguard/db"
	"github.com/rs/zerolog/log"
)

// sqliteBackend adapts db.TokenRepository to Backend.
type sqliteBackend struct{ repo db.TokenRepository }

// NewSQLiteBackend returns a Backend stored in the token table of the SQLite database.
func NewSQLiteBackend(repo db.TokenRepository) Backend {
	return &sqliteBackend{repo: repo}
}

func (b *sqliteBackend) Load(ctx context.Context) (*auth.Credentials, error) {
	tok, err := b.repo.Get(ctx)
	if err != nil || tok == nil {
		return nil, err
	}
	creds := &auth.Credentials{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if tok.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, tok.ExpiresAt)
		if err != nil {
			log.Error().Err(err).Msgf("Failed to parse expiration time: %s", tok.ExpiresAt)
		} else {
			creds.ExpiresAt = expiresAt
		}
	}
	return creds, nil
}

func (b *sqliteBackend) Save(ctx context.Context, creds auth.Credentials) error {
	tok := &db.Token{AccessToken: creds.AccessToken, RefreshToken: creds.RefreshToken}
	if !creds.ExpiresAt.IsZero() {
		tok.ExpiresAt = creds.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return b.repo.Upsert(ctx, tok)
}

func (b *sqliteBackend) Delete(ctx context.Context) error {
	return b.repo.Clear(ctx)
}
