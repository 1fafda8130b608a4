package main

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestConfigureLogLevelFromEnv(t *testing.T) {
	testCases := []struct {
		envVal      string
		expectedLvl zerolog.Level
	}{
		{"false", zerolog.Disabled},
		{"0", zerolog.Disabled},
		{"", zerolog.Disabled},
		{"true", zerolog.DebugLevel},
		{"1", zerolog.DebugLevel},
		{"random", zerolog.DebugLevel},
	}

	for _, tc := range testCases {
		t.Setenv("DEBUG_TOKENGUARD", tc.envVal)
		configureLogLevelFromEnv()
		assert.Equal(t, tc.expectedLvl, zerolog.GlobalLevel(), "DEBUG_TOKENGUARD=%q", tc.envVal)
	}
}

func TestSetupInterruptListener(t *testing.T) {
	stopChan := setupInterruptListener()
	assert.NotNil(t, stopChan)

	stopChan <- os.Interrupt
	select {
	case sig := <-stopChan:
		assert.Equal(t, os.Interrupt, sig)
	case <-time.After(100 * time.Millisecond):
		t.Error("did not receive signal on channel")
	}
}

func TestHandleInterrupt(t *testing.T) {
	stopChan := make(chan os.Signal, 1)
	exitCalled := make(chan int, 1)
	var loggedMessage string

	go handleInterrupt(stopChan, func(msg string) { loggedMessage = msg }, func(code int) { exitCalled <- code })
	stopChan <- os.Interrupt

	select {
	case code := <-exitCalled:
		assert.Equal(t, 130, code)
		assert.Equal(t, "Interrupt signal received. Exiting...", loggedMessage)
	case <-time.After(time.Second):
		t.Error("exit function was not called on interrupt")
	}
}
