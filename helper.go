package main

import (
	"path/filepath"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Telegram rejects text messages longer than this many UTF-16 code units.
const maxMessageLength = 4096

func fileNameWithoutExt(fileName string) string {
	return fileName[:len(fileName)-len(filepath.Ext(fileName))]
}

// sanitizeFileName keeps only the base name of a sender supplied file name so
// it can't escape the work dir.
func sanitizeFileName(fileName string) string {
	fileName = strings.ReplaceAll(fileName, "\\", "/")
	fileName = filepath.Base(fileName)
	fileName = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == ':' {
			return '_'
		}
		return r
	}, fileName)
	if fileName == "." || fileName == "/" || fileName == ".." {
		return ""
	}
	return fileName
}

// shortenFileName cuts name to at most limit bytes, keeping its extension and
// whole runes.
func shortenFileName(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > limit/4 {
		ext = ""
	}
	base := name[:len(name)-len(ext)]
	n := limit - len(ext)
	for n > 0 && !utf8.RuneStart(base[n]) {
		n--
	}
	return base[:n] + ext
}

func utf16Len(r []rune) (n int) {
	for _, c := range r {
		n += utf16.RuneLen(c)
	}
	return
}

// splitMessage cuts s into chunks of at most limit UTF-16 code units, the way
// Telegram counts message length, breaking at the last newline inside the
// limit when there is one.
func splitMessage(s string, limit int) (chunks []string) {
	r := []rune(s)
	for utf16Len(r) > limit {
		end, units := 0, 0
		for end < len(r) && units+utf16.RuneLen(r[end]) <= limit {
			units += utf16.RuneLen(r[end])
			end++
		}
		if end == 0 {
			end = 1
		}

		cut := end
		for i := end; i > 0; i-- {
			if i < len(r) && r[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(r[:cut]))
		if cut < len(r) && r[cut] == '\n' {
			cut++ // Dropping the newline we split at.
		}
		r = r[cut:]
	}
	if len(r) > 0 || len(chunks) == 0 {
		chunks = append(chunks, string(r))
	}
	return
}
