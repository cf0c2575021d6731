package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const restartDelay = 5 * time.Second

type supervisorState int

const (
	stateRunning supervisorState = iota
	stateBackoff
)

// Supervisor keeps a session running forever. Every failure is followed by
// the same fixed delay before the next attempt, there's no retry limit.
type Supervisor struct {
	run   func(ctx context.Context) error
	delay time.Duration
	after func(d time.Duration) <-chan time.Time
}

func NewSupervisor(run func(ctx context.Context) error) *Supervisor {
	return &Supervisor{
		run:   run,
		delay: restartDelay,
		after: time.After,
	}
}

// Run returns only when ctx is done.
func (s *Supervisor) Run(ctx context.Context) {
	state := stateRunning
	for {
		switch state {
		case stateRunning:
			err := s.run(ctx)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				err = errors.New("session ended")
			}
			slog.Error("bot crashed, restarting", "error", err, "delay", s.delay)
			state = stateBackoff
		case stateBackoff:
			select {
			case <-ctx.Done():
				return
			case <-s.after(s.delay):
			}
			state = stateRunning
		}
	}
}

// telegramSession is one connect-and-poll run of the bot. It ends with a
// ConnectionError on the first polling error or handler panic. Updates are
// handled on their own goroutines with the caller's context, so a failed
// session only stops polling and in-flight messages still get their reply.
type telegramSession struct {
	token   string
	handler *Handler
	// Extra bot options, appended after the session's own.
	botOpts []bot.Option

	inFlight sync.WaitGroup
}

func (t *telegramSession) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failed := make(chan error, 1)
	fail := func(err error) {
		select {
		case failed <- err:
		default:
		}
		cancel()
	}

	opts := append([]bot.Option{
		bot.WithDefaultHandler(func(_ context.Context, b *bot.Bot, update *models.Update) {
			t.inFlight.Add(1)
			go func() {
				defer t.inFlight.Done()
				defer func() {
					if r := recover(); r != nil {
						fail(&ConnectionError{Op: "handle update", Err: fmt.Errorf("panic: %v", r)})
					}
				}()
				t.handler.HandleUpdate(ctx, b, update)
			}()
		}),
		bot.WithErrorsHandler(func(err error) {
			fail(&ConnectionError{Op: "poll", Err: err})
		}),
	}, t.botOpts...)

	b, err := bot.New(t.token, opts...)
	if err != nil {
		return &ConnectionError{Op: "connect", Err: err}
	}

	slog.Info("bot connected, polling for updates")
	b.Start(runCtx)

	select {
	case err := <-failed:
		return err
	default:
		return nil
	}
}

// Wait blocks until every update handler started by any run has returned.
func (t *telegramSession) Wait() {
	t.inFlight.Wait()
}
