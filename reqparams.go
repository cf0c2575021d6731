package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/shlex"
)

type ReqParamsSTT struct {
	Language  string
	Translate bool
}

func (r ReqParamsSTT) String() string {
	lang := r.Language
	if lang == "" {
		lang = "Autodetect"
	}
	s := "🏳️‍🌈 " + lang
	if r.Translate {
		s += " 🔤 Translate"
	}
	return s
}

// ReqParamsParse reads "-lang <code>" and "-translate" from a media caption.
// Everything else in the caption is free text and gets skipped.
func ReqParamsParse(s string) (reqParams ReqParamsSTT, err error) {
	tokens, err := shlex.Split(s)
	if err != nil {
		return ReqParamsSTT{}, fmt.Errorf("can't split params: %w", err)
	}

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		if len(token) < 2 || token[0] != '-' {
			continue
		}

		attr := strings.ToLower(strings.TrimLeft(token, "-"))
		switch attr {
		case "lang", "language", "l":
			if i+1 >= len(tokens) {
				return ReqParamsSTT{}, fmt.Errorf("%s is missing value", attr)
			}
			i++
			reqParams.Language = strings.ToLower(tokens[i])
		case "translate", "t":
			reqParams.Translate = true
		default:
			slog.Debug("ignoring unknown param", "param", token)
		}
	}
	return
}
