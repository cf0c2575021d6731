package main

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot/models"
)

const startStr = "👋 Hi! Send me a voice message or an audio file " +
	"(.m4a, .mp3, .wav and others) and I'll transcribe it."

const helpStr = "🤖 Whisper Transcribe Telegram Bot\n\n" +
	"Send a voice message, an audio file or an audio document and you'll get " +
	"a timestamped transcript back.\n\n" +
	"Optional caption params:\n" +
	"-lang [language] - spoken language, autodetected if not set\n" +
	"-translate - translate the transcript to English\n\n" +
	"Commands:\n" +
	"/start - greeting\n" +
	"/help - show this help"

func (h *Handler) cmdStart(ctx context.Context, p Platform, msg *models.Message) {
	if err := h.sendReply(ctx, p, msg, startStr, ""); err != nil {
		slog.Error("can't send start reply", "error", err)
	}
}

func (h *Handler) cmdHelp(ctx context.Context, p Platform, msg *models.Message) {
	if err := h.sendReply(ctx, p, msg, helpStr, ""); err != nil {
		slog.Error("can't send help reply", "error", err)
	}
}
