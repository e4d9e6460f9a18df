// Package logsource streams kernel log lines from journalctl or the systemd
// journal into a channel.
package logsource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrSourceEnded reports that the underlying stream reached EOF or its
// process exited while the caller still wanted lines
var ErrSourceEnded = errors.New("log source ended")

// Source kinds accepted by New
const (
	KindCommand = "journalctl"
	KindJournal = "journal"
)

// maxLineBytes caps a single log line; longer lines abort the scan
const maxLineBytes = 1 << 20

// Source produces raw log lines. Stream blocks until ctx is cancelled, the
// source ends, or it fails. Lines are sent with a blocking send and never
// dropped. A Source is single-use; open a new one to restart.
type Source interface {
	Stream(ctx context.Context, lines chan<- string) error
	Close() error
	Name() string
}

// Config selects and configures a Source
type Config struct {
	Kind    string
	Command []string
	Logger  *slog.Logger
}

// New opens the source described by cfg
func New(cfg Config) (Source, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Kind {
	case "", KindCommand:
		src, err := NewCommandSource(cfg.Command, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case KindJournal:
		src, err := NewJournalSource(logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown log source %q (want %q or %q)", cfg.Kind, KindCommand, KindJournal)
	}
}

// ReaderSource streams lines from an arbitrary reader, e.g. stdin for replay
type ReaderSource struct {
	r    io.Reader
	name string
}

// NewReaderSource wraps r. EOF ends the stream with ErrSourceEnded.
func NewReaderSource(name string, r io.Reader) *ReaderSource {
	return &ReaderSource{r: r, name: name}
}

// Name returns the display name
func (s *ReaderSource) Name() string {
	return s.name
}

// Stream sends every line of the reader
func (s *ReaderSource) Stream(ctx context.Context, lines chan<- string) error {
	if err := scanLines(ctx, s.r, lines); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrSourceEnded, s.name, err)
	}
	return fmt.Errorf("%w: %s reached EOF", ErrSourceEnded, s.name)
}

// Close closes the reader if it is closable
func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// scanLines copies newline-delimited lines from r to lines until EOF
func scanLines(ctx context.Context, r io.Reader, lines chan<- string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to read log stream: %w", err)
	}
	return ctx.Err()
}
