package monitor

import (
	"context"
	"fmt"
	"time"
)

// StopTimeout bounds how long Stop waits for the session to wind down
const StopTimeout = 5 * time.Second

// Daemon runs a session in the background
type Daemon struct {
	cancel  context.CancelFunc
	session *Session
	done    chan struct{}
	err     error
}

// StartDaemon starts session.Run in a goroutine
func StartDaemon(ctx context.Context, session *Session) *Daemon {
	daemonCtx, cancel := context.WithCancel(ctx)

	d := &Daemon{
		cancel:  cancel,
		session: session,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(d.done)
		d.err = session.Run(daemonCtx)
	}()

	return d
}

// Done is closed when the session has stopped
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Err returns the session's exit error; valid after Done is closed
func (d *Daemon) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// Session returns the running session
func (d *Daemon) Session() *Session {
	return d.session
}

// Stop gracefully stops the session
func (d *Daemon) Stop() error {
	d.cancel()

	select {
	case <-d.done:
		return d.err
	case <-time.After(StopTimeout):
		return fmt.Errorf("daemon shutdown timeout")
	}
}
