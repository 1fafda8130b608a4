package main

import (
	"os"
	"os/signal"

	"github.com/habedi/tokenguard/cmd"
	"github.com/habedi/tokenguard/db"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// interruptExitCode is the conventional exit status for a process stopped by SIGINT.
const interruptExitCode = 130

// main sets up logging from DEBUG_TOKENGUARD, listens for interrupts and runs the CLI.
func main() {
	configureLogLevelFromEnv()

	stopChan := setupInterruptListener()
	go handleInterrupt(stopChan, func(msg string) {
		log.Error().Msg(msg)
		db.Shutdown()
	}, os.Exit)

	cmd.Execute()
}

// configureLogLevelFromEnv enables debug logging when DEBUG_TOKENGUARD is set to anything other
// than "", "0" or "false", and disables logging otherwise.
func configureLogLevelFromEnv() {
	switch os.Getenv("DEBUG_TOKENGUARD") {
	case "", "0", "false":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func setupInterruptListener() chan os.Signal {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt)
	return stopChan
}

// handleInterrupt waits for a signal, then logs and exits through the given functions.
func handleInterrupt(stopChan chan os.Signal, logFn func(string), exit func(int)) {
	<-stopChan
	logFn("Interrupt signal received. Exiting...")
	exit(interruptExitCode)
}
