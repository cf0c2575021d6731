package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/lmittmann/tint"
	"golang.org/x/exp/slices"
)

const genericErrorStr = "❌ An error occurred while processing the audio."

var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Platform is the part of the Telegram client the handler uses. *bot.Bot
// implements it.
type Platform interface {
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	FileDownloadLink(f *models.File) string
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type Handler struct {
	fetcher     *Fetcher
	transcriber Transcriber

	allowedUserIDs  []int64
	allowedGroupIDs []int64
}

func NewHandler(fetcher *Fetcher, transcriber Transcriber, allowedUserIDs, allowedGroupIDs []int64) *Handler {
	return &Handler{
		fetcher:         fetcher,
		transcriber:     transcriber,
		allowedUserIDs:  allowedUserIDs,
		allowedGroupIDs: allowedGroupIDs,
	}
}

// sendReply sends s as a reply to msg, split into as many messages as the
// length limit needs.
func (h *Handler) sendReply(ctx context.Context, p Platform, msg *models.Message, s string, parseMode models.ParseMode) error {
	for _, chunk := range splitMessage(s, maxMessageLength) {
		_, err := p.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    msg.Chat.ID,
			Text:      chunk,
			ParseMode: parseMode,
			ReplyParameters: &models.ReplyParameters{
				MessageID:                msg.ID,
				AllowSendingWithoutReply: true,
			},
		})
		if err != nil {
			return &ReplyError{ChatID: msg.Chat.ID, Err: err}
		}
	}
	return nil
}

func senderName(msg *models.Message) string {
	if msg.From == nil {
		return "unknown"
	}
	return fmt.Sprint(msg.From.Username, "#", msg.From.ID)
}

func (h *Handler) isAllowed(msg *models.Message) bool {
	if msg.Chat.ID >= 0 { // From user?
		if len(h.allowedUserIDs) == 0 {
			return true
		}
		return msg.From != nil && slices.Contains(h.allowedUserIDs, msg.From.ID)
	}
	return len(h.allowedGroupIDs) == 0 || slices.Contains(h.allowedGroupIDs, msg.Chat.ID)
}

// errorKind names the pipeline stage an error came from, for the logs only.
func errorKind(err error) string {
	var fetchErr *FetchError
	var transcriptionErr *TranscriptionError
	var replyErr *ReplyError
	switch {
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &transcriptionErr):
		return "transcription"
	case errors.As(err, &replyErr):
		return "reply"
	}
	return "unknown"
}

func (h *Handler) transcribeMessage(ctx context.Context, p Platform, msg *models.Message) error {
	reqParams, err := ReqParamsParse(msg.Caption)
	if err != nil {
		slog.Warn("can't parse caption params, using defaults", "error", err)
		reqParams = ReqParamsSTT{}
	}

	tmp, err := h.fetcher.Fetch(ctx, p, msg)
	if err != nil {
		return err
	}
	defer func() {
		if err := tmp.Remove(); err != nil {
			slog.Warn("can't remove temp file", "file", tmp.Path, "error", err)
		}
	}()

	slog.Info("transcribing", "file", tmp.Name, "params", reqParams.String())
	start := time.Now()
	segments, err := h.transcriber.Transcribe(ctx, tmp.Path, reqParams)
	if err != nil {
		return err
	}
	slog.Info("transcribed", "file", tmp.Name, "segments", len(segments), "took", time.Since(start).Round(time.Millisecond))

	return h.sendReply(ctx, p, msg, transcriptionHeaderStr+FormatTranscript(segments), models.ParseModeMarkdownV1)
}

func (h *Handler) handleMedia(ctx context.Context, p Platform, msg *models.Message) {
	err := h.transcribeMessage(ctx, p, msg)
	if err == nil {
		return
	}

	slog.Error("can't process audio", "from", senderName(msg), "kind", errorKind(err), "error", err)
	if err := h.sendReply(ctx, p, msg, genericErrorStr, ""); err != nil {
		slog.Error("can't send error reply", "error", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, p Platform, msg *models.Message) {
	cmd := strings.Fields(msg.Text)[0]
	cmd, _, _ = strings.Cut(cmd, "@")
	switch cmd {
	case "/start":
		slog.Debug("interpreting as cmd start")
		h.cmdStart(ctx, p, msg)
	case "/help":
		slog.Debug("interpreting as cmd help")
		h.cmdHelp(ctx, p, msg)
	default:
		slog.Debug("unknown cmd, ignoring", "cmd", cmd)
	}
}

// HandleUpdate routes one update. Messages that are neither a known command
// nor carry an audio attachment are ignored.
func (h *Handler) HandleUpdate(ctx context.Context, p Platform, update *models.Update) {
	if update.Message == nil {
		return
	}
	msg := update.Message

	slog.Info("msg", "from", senderName(msg), "chat", msg.Chat.ID, "text", msg.Text)
	if !h.isAllowed(msg) {
		slog.Info("sender not allowed, ignoring", "from", senderName(msg), "chat", msg.Chat.ID)
		return
	}

	if a, ok := ClassifyAttachment(msg); ok {
		slog.Info("got attachment", "kind", a.Kind, "name", a.FileName, "size", a.FileSize)
		h.handleMedia(ctx, p, msg)
		return
	}
	if strings.HasPrefix(msg.Text, "/") {
		h.handleCommand(ctx, p, msg)
	}
}

func main() {
	if err := params.Init(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[params.LogLevel],
		TimeFormat: time.DateTime,
	})))

	slog.Info("whisper-transcribe-telegram-bot starting", "engine", params.Engine, "model", params.ModelType)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(params.WorkDir, 0o755); err != nil {
		slog.Error("can't create work dir", "dir", params.WorkDir, "error", err)
		os.Exit(1)
	}

	transcriber, err := newTranscriber(params)
	if err != nil {
		slog.Error("can't init transcriber", "error", err)
		os.Exit(1)
	}
	if c, ok := transcriber.(io.Closer); ok {
		defer c.Close()
	}

	handler := NewHandler(NewFetcher(params.WorkDir, params.MaxFileSize), transcriber,
		params.AllowedUserIDs, params.AllowedGroupIDs)
	session := &telegramSession{token: params.BotToken, handler: handler}
	NewSupervisor(session.Run).Run(ctx)

	slog.Info("shutting down")
	session.Wait()
}
