package cmd

import (
	"os"

	"github.com/habedi/tokenguard/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func Execute() {
	rootCmd := createRootCmd()
	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	if err := rootCmd.Execute(); err != nil {
		ce := clierr.FromError(err)
		log.Error().Err(err).Str("type", string(ce.Type)).Msg("Command execution failed.")
		rootCmd.PrintErrln("Error:", ce.Message)
		os.Exit(ce.Type.ExitCode())
	}
}

func createRootCmd() *cobra.Command {
	cfg := &config{}

	rootCmd := &cobra.Command{
		Use:           "tokenguard",
		Short:         "Call a bearer-token API and renew expired sessions automatically",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cfg.bindFlags(rootCmd)

	rootCmd.AddCommand(
		loginCmd(cfg),
		logoutCmd(cfg),
		statusCmd(cfg),
		callCmd(cfg),
		mockCmd(cfg),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd
}
