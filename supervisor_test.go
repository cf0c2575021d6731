package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
)

// fakeAfter records the requested delays and fires right away.
type fakeAfter struct {
	mutex  sync.Mutex
	delays []time.Duration
}

func (f *fakeAfter) after(d time.Duration) <-chan time.Time {
	f.mutex.Lock()
	f.delays = append(f.delays, d)
	f.mutex.Unlock()
	c := make(chan time.Time, 1)
	c <- time.Now()
	return c
}

func TestSupervisorRestartsAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	s := NewSupervisor(func(ctx context.Context) error {
		attempts++
		if attempts < 4 {
			return &ConnectionError{Op: "poll", Err: errors.New("connection reset")}
		}
		cancel()
		return nil
	})
	fa := &fakeAfter{}
	s.after = fa.after

	s.Run(ctx)

	if attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", attempts)
	}
	if len(fa.delays) != 3 {
		t.Fatalf("expected 3 backoffs, got %d", len(fa.delays))
	}
	for _, d := range fa.delays {
		if d != 5*time.Second {
			t.Errorf("expected the fixed 5s delay, got %s", d)
		}
	}
}

func TestSupervisorRestartsAfterCleanExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	s := NewSupervisor(func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return nil
	})
	fa := &fakeAfter{}
	s.after = fa.after

	s.Run(ctx)

	if attempts != 2 || len(fa.delays) != 1 {
		t.Errorf("got %d attempts and %d backoffs", attempts, len(fa.delays))
	}
}

func TestSupervisorStopsDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	s := NewSupervisor(func(ctx context.Context) error {
		attempts++
		return errors.New("unauthorized")
	})
	s.after = func(d time.Duration) <-chan time.Time {
		cancel()
		return nil // Never fires.
	}

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor didn't stop after cancel")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestSupervisorKeepsRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mutex sync.Mutex
	var attemptTimes []time.Time
	s := NewSupervisor(func(ctx context.Context) error {
		mutex.Lock()
		defer mutex.Unlock()
		attemptTimes = append(attemptTimes, time.Now())
		if len(attemptTimes) == 5 {
			cancel()
		}
		return errors.New("boom")
	})
	s.delay = 20 * time.Millisecond

	s.Run(ctx)

	if len(attemptTimes) != 5 {
		t.Fatalf("expected 5 attempts, got %d", len(attemptTimes))
	}
	for i := 1; i < len(attemptTimes); i++ {
		if gap := attemptTimes[i].Sub(attemptTimes[i-1]); gap < s.delay {
			t.Errorf("attempt %d came after %s, before the delay", i, gap)
		}
	}
}

func TestTelegramSessionConnectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	session := &telegramSession{
		token:   "123:invalid",
		handler: NewHandler(NewFetcher(t.TempDir(), 0), &fakeTranscriber{}, nil, nil),
		botOpts: []bot.Option{bot.WithServerURL(srv.URL)},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := session.Run(ctx)

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected a ConnectionError, got %v", err)
	}
	if connErr.Op != "connect" {
		t.Errorf("expected op connect, got %s", connErr.Op)
	}
}

const testBotToken = "123:test"

const voiceUpdateJSON = `{"ok":true,"result":[{"update_id":1,"message":{` +
	`"message_id":7,"date":0,"chat":{"id":42,"type":"private"},` +
	`"from":{"id":42,"is_bot":false,"first_name":"tester","username":"tester"},` +
	`"voice":{"file_id":"voice1","file_unique_id":"u1","duration":1,"file_size":5}}}]}`

// fakeTelegramServer answers the bot API calls a session makes. The first
// getUpdates returns one voice message. With failPoll set the next one fails
// with a 502 once the voice file was requested, otherwise it long polls.
type fakeTelegramServer struct {
	*httptest.Server

	failPoll bool

	mutex    sync.Mutex
	polls    int
	sent     []string
	fileSeen chan struct{}
	seenOnce sync.Once
}

func newFakeTelegramServer(t *testing.T, failPoll bool) *fakeTelegramServer {
	f := &fakeTelegramServer{failPoll: failPoll, fileSeen: make(chan struct{})}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeTelegramServer) serve(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/file/") {
		_, _ = w.Write([]byte("audio"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch strings.TrimPrefix(r.URL.Path, "/bot"+testBotToken+"/") {
	case "getMe":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"test_bot"}}`))
	case "getUpdates":
		f.mutex.Lock()
		f.polls++
		polls := f.polls
		f.mutex.Unlock()

		if polls == 1 {
			_, _ = w.Write([]byte(voiceUpdateJSON))
			return
		}
		if f.failPoll {
			select {
			case <-f.fileSeen:
			case <-time.After(5 * time.Second):
			}
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`))
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	case "getFile":
		f.seenOnce.Do(func() { close(f.fileSeen) })
		_, _ = w.Write([]byte(`{"ok":true,"result":{"file_id":"voice1","file_unique_id":"u1","file_path":"voice/file_0.oga"}}`))
	case "sendMessage":
		f.mutex.Lock()
		f.sent = append(f.sent, messageText(r))
		f.mutex.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":100,"date":0,"chat":{"id":42,"type":"private"}}}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}
}

func messageText(r *http.Request) string {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	if text := r.FormValue("text"); text != "" {
		return text
	}
	var params struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(body, &params)
	return params.Text
}

func (f *fakeTelegramServer) sentTexts() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.sent...)
}

// slowTranscriber takes a while and fails if its context gets canceled
// meanwhile.
type slowTranscriber struct {
	delay time.Duration
}

func (s slowTranscriber) Transcribe(ctx context.Context, filePath string, reqParams ReqParamsSTT) ([]TranscriptSegment, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return []TranscriptSegment{{Start: 0, End: 1, Text: "hello"}}, nil
}

type panicTranscriber struct{}

func (panicTranscriber) Transcribe(context.Context, string, ReqParamsSTT) ([]TranscriptSegment, error) {
	panic("model exploded")
}

func newTestSession(t *testing.T, srv *fakeTelegramServer, tr Transcriber) (*telegramSession, string) {
	workDir := t.TempDir()
	return &telegramSession{
		token:   testBotToken,
		handler: NewHandler(NewFetcher(workDir, defaultMaxFileSize), tr, nil, nil),
		botOpts: []bot.Option{bot.WithServerURL(srv.URL)},
	}, workDir
}

func TestTelegramSessionPollErrorKeepsInFlightUpdates(t *testing.T) {
	srv := newFakeTelegramServer(t, true)
	session, workDir := newTestSession(t, srv, slowTranscriber{delay: 300 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := session.Run(ctx)

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected a ConnectionError, got %v", err)
	}
	if connErr.Op != "poll" {
		t.Errorf("expected op poll, got %s", connErr.Op)
	}

	session.Wait()
	texts := srv.sentTexts()
	want := transcriptionHeaderStr + "0.0s - 1.0s: hello"
	if len(texts) != 1 || texts[0] != want {
		t.Errorf("expected the transcript reply after the session ended, got %q", texts)
	}
	assertEmptyDir(t, workDir)
}

func TestTelegramSessionHandlerPanic(t *testing.T) {
	srv := newFakeTelegramServer(t, false)
	session, workDir := newTestSession(t, srv, panicTranscriber{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := session.Run(ctx)

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected a ConnectionError, got %v", err)
	}
	if connErr.Op != "handle update" {
		t.Errorf("expected op handle update, got %s", connErr.Op)
	}
	if ctx.Err() != nil {
		t.Error("session should end on the panic, not on the timeout")
	}

	session.Wait()
	assertEmptyDir(t, workDir)
}
