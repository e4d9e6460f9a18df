//go:build linux
// +build linux

package logsource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/sdjournal"
)

// JournalOpenTimeout is the maximum time to wait for the journal to open
const JournalOpenTimeout = 5 * time.Second

// shortISO mirrors journalctl -o short-iso
const shortISO = "2006-01-02T15:04:05-0700"

// JournalSource reads kernel messages straight from the systemd journal
type JournalSource struct {
	journal   *sdjournal.Journal
	logger    *slog.Logger
	hostname  string
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewJournalSource opens the journal positioned at its tail. It uses a timeout
// so an inaccessible journal cannot hang startup.
func NewJournalSource(logger *slog.Logger) (*JournalSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	type result struct {
		source *JournalSource
		err    error
	}
	resultChan := make(chan result, 1)

	go func() {
		source, err := openJournal(logger)
		resultChan <- result{source, err}
	}()

	select {
	case res := <-resultChan:
		return res.source, res.err
	case <-time.After(JournalOpenTimeout):
		return nil, fmt.Errorf("timeout opening systemd journal (waited %v) - journal may not be accessible", JournalOpenTimeout)
	}
}

func openJournal(logger *slog.Logger) (*JournalSource, error) {
	journal, err := sdjournal.NewJournal()
	if err != nil {
		return nil, fmt.Errorf("failed to open systemd journal: %w", err)
	}

	if err := journal.AddMatch("_TRANSPORT=kernel"); err != nil {
		journal.Close()
		return nil, fmt.Errorf("failed to add kernel filter: %w", err)
	}

	// Only new entries: SeekTail positions past the last entry, so step back
	// onto it and let Next() advance to whatever arrives afterwards
	if err := journal.SeekTail(); err != nil {
		journal.Close()
		return nil, fmt.Errorf("failed to seek to end of journal: %w", err)
	}
	_, _ = journal.Previous()

	hostname, _ := os.Hostname()
	logger.Debug("journal opened, waiting for kernel entries")

	return &JournalSource{journal: journal, logger: logger, hostname: hostname}, nil
}

// Name identifies the source
func (js *JournalSource) Name() string {
	return "systemd journal (kernel)"
}

// Stream forwards kernel messages formatted like journalctl short-iso output
func (js *JournalSource) Stream(ctx context.Context, lines chan<- string) error {
	defer js.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		js.mu.Lock()
		if js.closed || js.journal == nil {
			js.mu.Unlock()
			return nil
		}
		journal := js.journal
		js.mu.Unlock()

		// SD_JOURNAL_NOP on timeout, SD_JOURNAL_APPEND when entries arrived
		journal.Wait(time.Second)

		for {
			line, ok, err := js.next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if line == "" {
				continue
			}

			select {
			case lines <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// next reads one entry. ok is false when no entry is pending or the source closed.
func (js *JournalSource) next() (string, bool, error) {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.closed || js.journal == nil {
		return "", false, nil
	}
	n, err := js.journal.Next()
	if err != nil {
		return "", false, fmt.Errorf("failed to read next journal entry: %w", err)
	}
	if n == 0 {
		return "", false, nil
	}

	msg, err := js.journal.GetData("MESSAGE")
	if err != nil {
		js.logger.Debug("journal entry without MESSAGE", "error", err)
		return "", true, nil
	}
	msg = strings.TrimPrefix(msg, "MESSAGE=")

	ts := time.Now()
	if usec, err := js.journal.GetRealtimeUsec(); err == nil {
		ts = time.UnixMicro(int64(usec))
	}
	host := js.hostname
	if h, err := js.journal.GetData("_HOSTNAME"); err == nil {
		host = strings.TrimPrefix(h, "_HOSTNAME=")
	}

	return formatLine(ts, host, msg), true, nil
}

// formatLine renders an entry the way journalctl -o short-iso does
func formatLine(ts time.Time, host, msg string) string {
	return fmt.Sprintf("%s %s kernel: %s", ts.Format(shortISO), host, msg)
}

// Close closes the journal handle (safe to call multiple times)
func (js *JournalSource) Close() error {
	var closeErr error
	js.closeOnce.Do(func() {
		js.mu.Lock()
		defer js.mu.Unlock()
		js.closed = true
		if js.journal != nil {
			closeErr = js.journal.Close()
			js.journal = nil
		}
	})
	return closeErr
}
