package main

import (
	"math"
	"strconv"
	"strings"
)

const transcriptionHeaderStr = "🔊 *Transcription:*\n"

// FormatTranscript renders one "<start>s - <end>s: <text>" line per segment.
func FormatTranscript(segments []TranscriptSegment) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		lines = append(lines, formatSeconds(seg.Start)+"s - "+formatSeconds(seg.End)+"s: "+seg.Text)
	}
	return strings.Join(lines, "\n")
}

// formatSeconds rounds the exact value to 2 decimals and always keeps at least
// one fractional digit, so 3 renders as "3.0" and 1.234 as "1.23".
func formatSeconds(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	// Rounding v*100 would round the inexact product, not v.
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	s := strconv.FormatFloat(rounded, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
