package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/alexisbeaulieu97/profilestate/internal/app/converge"
	"github.com/alexisbeaulieu97/profilestate/internal/config"
	"github.com/alexisbeaulieu97/profilestate/internal/events"
	"github.com/alexisbeaulieu97/profilestate/internal/logger"
	"github.com/alexisbeaulieu97/profilestate/internal/metrics"
	"github.com/alexisbeaulieu97/profilestate/internal/profile"
	"github.com/alexisbeaulieu97/profilestate/internal/state"
)

// hostOS is swapped in tests.
var hostOS = runtime.GOOS

func newCommandLogger(root *rootFlags, verbose bool, w io.Writer) (*logger.Logger, error) {
	level := "info"
	if root.verbose || verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{
		Level:         level,
		HumanReadable: root.logFormat != logFormatJSON,
		Writer:        w,
		CorrelationID: logger.NewCorrelationID(),
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}

// capabilitiesFor builds the profile adapter for the manifest settings.
func capabilitiesFor(log *logger.Logger) converge.CapabilitiesFactory {
	return func(settings config.Settings) (state.Capabilities, error) {
		binary := settings.ProfilesBinary
		if binary == "" {
			binary = profile.DefaultBinary
		}
		if binary == profile.DefaultBinary && hostOS != "darwin" {
			return nil, fmt.Errorf("%s is only available on macOS (running on %s); set profiles_binary to use a substitute", binary, hostOS)
		}
		return profile.New(profile.Options{
			Binary:  binary,
			TempDir: settings.TempDir,
			Logger:  log,
		}), nil
	}
}

func newService(log *logger.Logger, recorder *metrics.Recorder) *converge.Service {
	return converge.NewService(converge.Dependencies{
		Capabilities: capabilitiesFor(log),
		Events:       events.NewLoggingPublisher(log),
		Metrics:      recorder,
		Logger:       log,
	})
}
