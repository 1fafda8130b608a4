package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habedi/tokenguard/auth"
	"github.com/habedi/tokenguard/pkg/clierr"
	"github.com/habedi/tokenguard/pkg/hasher"
	"github.com/habedi/tokenguard/store"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const expiringSoon = time.Minute

// statusCmd shows what the credential store currently holds.
func statusCmd(cfg *config) *cobra.Command {
	var hashAlgo string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !hasher.IsValidHashAlgo(hashAlgo) {
				return clierr.New(clierr.Validation, fmt.Sprintf("unsupported hash algorithm %q, expected one of %s",
					hashAlgo, strings.Join(hasher.HashAlgorithms, ", ")), nil)
			}

			st, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			creds, err := st.Credentials(cmd.Context())
			if errors.Is(err, store.ErrNoCredentials) {
				cmd.Println("Not logged in. Use `tokenguard login` to store a session.")
				return nil
			}
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Field", "Value"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAutoWrapText(false)
			table.Append([]string{"Store", cfg.storeKind})
			table.Append([]string{"Access token", maskToken(creds.AccessToken)})
			table.Append([]string{"Refresh token", maskToken(creds.RefreshToken)})
			if fp, err := hasher.Fingerprint(creds.RefreshToken, hashAlgo); err == nil && fp != "" {
				table.Append([]string{"Refresh fingerprint", fp})
			}
			table.Append([]string{"Expires at", formatExpiry(creds.ExpiresAt)})
			table.Append([]string{"State", sessionState(creds, time.Now())})
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&hashAlgo, "hash", "sha256", "Hash algorithm for the refresh token fingerprint [md5, sha1, sha256, sha512]")

	return cmd
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format(time.RFC3339)
}

func sessionState(creds auth.Credentials, now time.Time) string {
	switch {
	case creds.ExpiresWithin(now, 0):
		return "expired (renewed on next call)"
	case creds.ExpiresWithin(now, expiringSoon):
		return "expiring soon"
	default:
		return "active"
	}
}
