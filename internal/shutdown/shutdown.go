// Package shutdown provides graceful SIGINT/SIGTERM handling with a
// teardown deadline. Adapted from the teacher's internal/gracefulShutdown.go:
// same signal-trap-then-teardown-then-exit shape, trimmed to a single
// teardown callback matching orchestrator.Orchestrator.Close's signature.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Handler traps SIGINT/SIGTERM, runs a teardown function, and force-exits if
// teardown doesn't complete within the deadline.
type Handler interface {
	// Shutdown triggers teardown programmatically, as if a signal arrived.
	Shutdown()
	// ShuttingDown reports whether teardown is in progress.
	ShuttingDown() bool
	// Wait blocks until the handler's goroutine has exited (teardown done,
	// process about to exit).
	Wait()
}

type handler struct {
	quit         chan os.Signal
	shuttingDown chan bool
	wg           sync.WaitGroup
	log          *zap.SugaredLogger
	deadline     time.Duration
}

// New starts a Handler that calls teardown (if non-nil) once a SIGINT/SIGTERM
// is received, or Shutdown() is called directly. Kubernetes sends SIGTERM up
// to `deadline` before a hard kill, so teardown is given that same budget.
func New(log *zap.SugaredLogger, deadline time.Duration, teardown func() error) Handler {
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	h := &handler{
		quit:         make(chan os.Signal, 1),
		shuttingDown: make(chan bool, 1),
		log:          log,
		deadline:     deadline,
	}
	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		signal.Notify(h.quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-h.quit
		h.shuttingDown <- true
		if h.log != nil {
			h.log.Infow("received signal, shutting down", "signal", sig.String())
		}
		if teardown != nil {
			go func() {
				<-time.After(h.deadline)
				if h.log != nil {
					h.log.Errorw("teardown did not complete in time", "deadline", h.deadline)
				}
				_ = h.log.Sync()
				os.Exit(1)
			}()
			if err := teardown(); err != nil {
				if h.log != nil {
					h.log.Errorw("error during teardown", "error", err)
				}
				return
			}
		}
		if h.log != nil {
			h.log.Info("teardown complete, ready to exit")
		}
		os.Exit(0)
	}()

	return h
}

func (h *handler) ShuttingDown() bool {
	select {
	case <-h.shuttingDown:
		h.shuttingDown <- true
		return true
	default:
		return false
	}
}

func (h *handler) Shutdown() {
	if !h.ShuttingDown() {
		h.quit <- syscall.SIGTERM
	}
}

func (h *handler) Wait() {
	h.wg.Wait()
}
