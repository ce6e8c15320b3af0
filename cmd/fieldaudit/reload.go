package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/fieldaudit/pkg/bootstrap"
	"github.com/platinummonkey/fieldaudit/pkg/config"
	"github.com/platinummonkey/fieldaudit/pkg/observability"
)

// watchConfig applies log level changes from the config file. Other
// settings need a restart.
func watchConfig(path string, logger *observability.Logger, diagnostics *logrus.Logger) {
	defer observability.RecoverPanic(logger, "config watcher")

	apply := func(cfg *config.Config) {
		level := cfg.Observability.Level()
		if level == logger.Level() {
			return
		}
		logger.WithField("level", level.String()).Info("Applying reloaded log level")
		logger.SetLevel(level)
		bootstrap.SetDiagnosticLevel(diagnostics, level)
	}
	onError := func(err error) {
		logger.WithError(err).Warn("Ignoring invalid configuration reload")
	}

	if err := config.Watch(context.Background(), path, apply, onError); err != nil {
		logger.WithError(err).Error("Config watcher stopped")
	}
}
