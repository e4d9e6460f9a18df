package logsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultCommand follows the kernel log from now on, one line per entry with
// an ISO-8601 timestamp prefix
func DefaultCommand() []string {
	return []string{"journalctl", "-k", "-f", "--no-pager", "-o", "short-iso", "-n", "0"}
}

// stderrTailBytes is how much trailing stderr is kept for error messages
const stderrTailBytes = 2048

// CommandSource runs a log-following command and streams its stdout
type CommandSource struct {
	argv   []string
	logger *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	closed    bool
	closeOnce sync.Once
}

// NewCommandSource prepares argv for streaming. An empty argv means DefaultCommand.
func NewCommandSource(argv []string, logger *slog.Logger) (*CommandSource, error) {
	if len(argv) == 0 {
		argv = DefaultCommand()
	}
	if strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("log command is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSource{
		argv:   append([]string(nil), argv...),
		logger: logger,
	}, nil
}

// Name returns the command line
func (s *CommandSource) Name() string {
	return strings.Join(s.argv, " ")
}

// Stream starts the command and forwards its output. The process is killed
// when ctx is cancelled or Close is called.
func (s *CommandSource) Stream(ctx context.Context, lines chan<- string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.cmd != nil {
		s.mu.Unlock()
		return errors.New("command source already started")
	}

	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	cmd.WaitDelay = time.Second
	stderr := &tailWriter{max: stderrTailBytes}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to open %s output: %w", s.argv[0], err)
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to start %s: %w", s.argv[0], err)
	}
	s.cmd = cmd
	s.mu.Unlock()

	s.logger.Debug("log command started", "command", s.Name(), "pid", cmd.Process.Pid)

	scanErr := scanLines(ctx, stdout, lines)
	if scanErr != nil {
		// Stop the process so Wait does not block on a reader we abandoned
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.isClosed() {
		return nil
	}
	if scanErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrSourceEnded, s.argv[0], scanErr)
	}

	msg := "exited"
	if waitErr != nil {
		msg = waitErr.Error()
	}
	if tail := stderr.String(); tail != "" {
		msg += ": " + tail
	}
	return fmt.Errorf("%w: %s %s", ErrSourceEnded, s.argv[0], msg)
}

func (s *CommandSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close kills the running process (safe to call multiple times)
func (s *CommandSource) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		if s.cmd != nil && s.cmd.Process != nil {
			if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				closeErr = fmt.Errorf("failed to stop %s: %w", s.argv[0], err)
			}
		}
	})
	return closeErr
}

// tailWriter keeps the last max bytes written to it
type tailWriter struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	if over := len(w.buf) - w.max; over > 0 {
		w.buf = w.buf[over:]
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.TrimSpace(string(w.buf))
}
