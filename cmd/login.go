package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/habedi/tokenguard/auth"
	"github.com/habedi/tokenguard/client"
	"github.com/habedi/tokenguard/pkg/clierr"
	"github.com/habedi/tokenguard/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// loginCmd stores a credential pair. Tokens not given as flags are prompted for.
func loginCmd(cfg *config) *cobra.Command {
	var accessToken, refreshToken string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save an access token and refresh token",
		Long:  "Save an access token and refresh token in the credential store. Tokens not passed as flags are read from standard input.",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			if !cmd.Flags().Changed("access-token") {
				accessToken = promptForInput(cmd, reader, "Access token: ")
			}
			if !cmd.Flags().Changed("refresh-token") {
				refreshToken = promptForSecret(cmd, reader, "Refresh token: ")
			}
			if err := validation.ValidateNonEmptyString("refresh token", refreshToken); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}

			st, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			creds := auth.Credentials{
				AccessToken:  accessToken,
				RefreshToken: refreshToken,
				ExpiresAt:    client.TokenExpiry(accessToken),
			}
			if err := st.SetCredentials(cmd.Context(), creds); err != nil {
				return err
			}
			log.Info().Str("store", cfg.storeKind).Msg("Credentials saved")
			cmd.Println("Login was successful.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&accessToken, "access-token", "a", "", "Access token to store")
	cmd.Flags().StringVarP(&refreshToken, "refresh-token", "r", "", "Refresh token to store")

	return cmd
}

// logoutCmd removes the stored credentials.
func logoutCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := st.ClearCredentials(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Logged out.")
			return nil
		},
	}
}

// promptForInput prompts the user for input and returns the trimmed string.
func promptForInput(cmd *cobra.Command, reader *bufio.Reader, prompt string) string {
	cmd.Print(prompt)
	input, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		log.Error().Err(err).Msg("Failed to read input")
	}
	return strings.TrimSpace(input)
}

// promptForSecret reads a secret without echo when stdin is a terminal, otherwise a plain line.
func promptForSecret(cmd *cobra.Command, reader *bufio.Reader, prompt string) string {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.Print(prompt)
		secret, err := term.ReadPassword(int(f.Fd()))
		cmd.Println() // Print a newline for better formatting
		if err != nil {
			log.Error().Err(err).Msg("Failed to read secret")
			return ""
		}
		return strings.TrimSpace(string(secret))
	}
	return promptForInput(cmd, reader, prompt)
}

func maskToken(token string) string {
	switch {
	case token == "":
		return "(none)"
	case len(token) <= 8:
		return strings.Repeat("*", len(token))
	default:
		return fmt.Sprintf("%s…%s (%d chars)", token[:4], token[len(token)-4:], len(token))
	}
}
