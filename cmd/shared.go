package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/habedi/tokenguard/auth"
	"github.com/habedi/tokenguard/client"
	"github.com/habedi/tokenguard/db"
	"github.com/habedi/tokenguard/pkg/clierr"
	"github.com/habedi/tokenguard/pkg/validation"
	"github.com/habedi/tokenguard/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

const (
	storeSQLite = "sqlite"
	storeRedis  = "redis"
)

// config holds the persistent flags shared by every command.
type config struct {
	apiURL       string
	tokenURL     string
	clientID     string
	clientSecret string
	storeKind    string
	redisAddr    string
	redisKey     string
	useOAuth2    bool
}

func (c *config) bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&c.apiURL, "api-url", envOr("TOKENGUARD_API_URL", "http://localhost:8080"), "Base URL of the API")
	flags.StringVar(&c.tokenURL, "token-url", envOr("TOKENGUARD_TOKEN_URL", ""), "Token endpoint URL (default <api-url>/token)")
	flags.StringVar(&c.clientID, "client-id", envOr("TOKENGUARD_CLIENT_ID", ""), "OAuth2 client ID sent with refresh requests")
	flags.StringVar(&c.clientSecret, "client-secret", envOr("TOKENGUARD_CLIENT_SECRET", ""), "OAuth2 client secret sent with refresh requests")
	flags.StringVar(&c.storeKind, "store", envOr("TOKENGUARD_STORE", storeSQLite), "Credential store to use [sqlite, redis, memory]")
	flags.StringVar(&c.redisAddr, "redis-addr", envOr("TOKENGUARD_REDIS_ADDR", "localhost:6379"), "Redis address for --store=redis")
	flags.StringVar(&c.redisKey, "redis-key", store.DefaultRedisKey, "Redis hash key for --store=redis")
	flags.BoolVar(&c.useOAuth2, "oauth2", false, "Refresh tokens with the golang.org/x/oauth2 client instead of a plain form POST")
}

func (c *config) tokenEndpoint() string {
	if c.tokenURL != "" {
		return c.tokenURL
	}
	return strings.TrimRight(c.apiURL, "/") + "/token"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// openStore opens the credential store selected by --store. The returned function releases it.
func openStore(ctx context.Context, cfg *config) (*store.Store, func(), error) {
	if err := validation.ValidateStoreKind(cfg.storeKind); err != nil {
		return nil, nil, clierr.New(clierr.Validation, err.Error(), err)
	}
	switch cfg.storeKind {
	case storeSQLite:
		if err := db.ConfigurePath(); err != nil {
			return nil, nil, err
		}
		if err := db.InitDB(); err != nil {
			return nil, nil, fmt.Errorf("failed to open credential database: %w", err)
		}
		return store.New(store.NewSQLiteBackend(db.NewTokenRepository(db.GetDB()))), db.Shutdown, nil
	case storeRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.redisAddr, err)
		}
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close redis client")
			}
		}
		return store.New(store.NewRedisBackend(rdb, cfg.redisKey, 0)), closeFn, nil
	default: // memory
		return store.New(store.NewMemoryBackend()), func() {}, nil
	}
}

func newRefresher(cfg *config) auth.Refresher {
	if cfg.useOAuth2 {
		return &client.OAuth2Refresher{Config: &oauth2.Config{
			ClientID:     cfg.clientID,
			ClientSecret: cfg.clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.tokenEndpoint(), AuthStyle: oauth2.AuthStyleInParams},
		}}
	}
	return &client.FormRefresher{
		TokenURL:     cfg.tokenEndpoint(),
		ClientID:     cfg.clientID,
		ClientSecret: cfg.clientSecret,
	}
}
