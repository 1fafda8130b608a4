package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/habedi/tokenguard/internal/mockapi"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// mockCmd serves the development API until the command's context is cancelled. When
// --client-secret is set the token endpoint requires --client-id and --client-secret.
func mockCmd(cfg *config) *cobra.Command {
	var addr string
	var accessTTL, refreshDelay time.Duration

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run a local API that issues rotating tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []mockapi.Option{mockapi.WithAccessTTL(accessTTL), mockapi.WithRefreshDelay(refreshDelay)}
			if cfg.clientSecret != "" {
				opts = append(opts, mockapi.WithClient(cfg.clientID, cfg.clientSecret))
			}
			api := mockapi.New(opts...)
			access, refresh := api.Tokens()

			cmd.Printf("Mock API listening on %s\n", addr)
			cmd.Println("Log in with:")
			cmd.Printf("  tokenguard login --access-token %s --refresh-token %s\n", access, refresh)

			return serve(cmd.Context(), &http.Server{
				Addr:              addr,
				Handler:           api,
				ReadHeaderTimeout: 10 * time.Second,
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", 15*time.Minute, "Lifetime of issued access tokens")
	cmd.Flags().DurationVar(&refreshDelay, "refresh-delay", 0, "Delay before the token endpoint answers")

	return cmd
}

func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down mock API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
