package main

import (
	"fmt"
	"io"
	"log/slog"

	"fbicheck/internal/broker"
	"fbicheck/internal/config"
	"fbicheck/internal/events"
)

// openPublisher returns the AMQP publisher, or a writer-backed one that prints
// events to out when dryRun is set.
func openPublisher(cfg *config.Config, dryRun bool, out io.Writer, logger *slog.Logger) (broker.Publisher, error) {
	if dryRun {
		encoder, err := events.EncoderFor(cfg.Broker.MessageFormat)
		if err != nil {
			return nil, err
		}
		return broker.NewWriterPublisher(out, encoder), nil
	}
	if err := cfg.ValidatePublishing(); err != nil {
		return nil, err
	}
	opts, err := broker.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	pub, err := broker.Dial(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to broker (use --dry-run to print events instead): %w", err)
	}
	return pub, nil
}
