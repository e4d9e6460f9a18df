//go:build !linux
// +build !linux

package logsource

import (
	"context"
	"errors"
	"log/slog"
)

// JournalSource stub for non-Linux platforms
type JournalSource struct{}

// NewJournalSource returns an error on non-Linux platforms
func NewJournalSource(logger *slog.Logger) (*JournalSource, error) {
	return nil, errors.New("systemd journal is only supported on Linux")
}

// Name identifies the source
func (js *JournalSource) Name() string {
	return "systemd journal (unsupported)"
}

// Stream always fails on non-Linux platforms
func (js *JournalSource) Stream(ctx context.Context, lines chan<- string) error {
	return errors.New("systemd journal is only supported on Linux")
}

// Close is a no-op on non-Linux platforms
func (js *JournalSource) Close() error {
	return nil
}
