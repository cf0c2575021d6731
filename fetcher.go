package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
)

// Bot API servers refuse getFile for anything bigger.
const defaultMaxFileSize = 20 << 20

// Longest attachment name kept in temp file names. The uuid prefix and the
// suffixes of derived files ("-stt.json", "-16k.wav") must still fit NAME_MAX.
const maxTempNameLength = 128

type AttachmentKind int

const (
	AttachmentVoice AttachmentKind = iota
	AttachmentAudio
	AttachmentDocument
)

func (k AttachmentKind) String() string {
	switch k {
	case AttachmentVoice:
		return "voice"
	case AttachmentAudio:
		return "audio"
	case AttachmentDocument:
		return "document"
	}
	return "unknown"
}

type Attachment struct {
	Kind     AttachmentKind
	FileID   string
	FileName string
	FileSize int64
}

// ClassifyAttachment picks the message's attachment, voice over audio over
// document, and applies the default file name of its kind.
func ClassifyAttachment(msg *models.Message) (Attachment, bool) {
	switch {
	case msg.Voice != nil:
		return Attachment{
			Kind:     AttachmentVoice,
			FileID:   msg.Voice.FileID,
			FileName: "voice.ogg",
			FileSize: int64(msg.Voice.FileSize),
		}, true
	case msg.Audio != nil:
		a := Attachment{
			Kind:     AttachmentAudio,
			FileID:   msg.Audio.FileID,
			FileName: msg.Audio.FileName,
			FileSize: int64(msg.Audio.FileSize),
		}
		if a.FileName == "" {
			a.FileName = "audio.mp3"
		}
		return a, true
	case msg.Document != nil:
		a := Attachment{
			Kind:     AttachmentDocument,
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			FileSize: int64(msg.Document.FileSize),
		}
		if a.FileName == "" {
			a.FileName = "audio.m4a"
		}
		return a, true
	}
	return Attachment{}, false
}

// TempAudioFile is a downloaded attachment owned by a single handler run.
type TempAudioFile struct {
	Path string
	// Name is the attachment's file name, without the unique prefix.
	Name string
}

// Remove deletes the file. A missing file is not an error.
func (f *TempAudioFile) Remove() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type Fetcher struct {
	workDir     string
	maxFileSize int64
	httpClient  *http.Client
}

func NewFetcher(workDir string, maxFileSize int64) *Fetcher {
	return &Fetcher{
		workDir:     workDir,
		maxFileSize: maxFileSize,
		httpClient:  &http.Client{},
	}
}

// Fetch resolves and downloads the message's attachment into the work dir.
// Every call gets its own file, concurrent downloads of same-named
// attachments don't collide.
func (f *Fetcher) Fetch(ctx context.Context, p Platform, msg *models.Message) (*TempAudioFile, error) {
	a, ok := ClassifyAttachment(msg)
	if !ok {
		return nil, &FetchError{Op: "classify", Err: errors.New("message has no audio attachment")}
	}
	if f.maxFileSize > 0 && a.FileSize > f.maxFileSize {
		return nil, &FetchError{Op: "check size", Err: fmt.Errorf("file is %d bytes, limit is %d", a.FileSize, f.maxFileSize)}
	}

	file, err := p.GetFile(ctx, &bot.GetFileParams{FileID: a.FileID})
	if err != nil {
		return nil, &FetchError{Op: "get file", Err: err}
	}

	name := shortenFileName(sanitizeFileName(a.FileName), maxTempNameLength)
	if name == "" {
		name = "audio"
	}
	tmp := &TempAudioFile{
		Path: filepath.Join(f.workDir, uuid.NewString()+"-"+name),
		Name: name,
	}
	n, err := f.download(ctx, p.FileDownloadLink(file), tmp.Path)
	if err != nil {
		_ = tmp.Remove()
		return nil, &FetchError{Op: "download", Err: err}
	}
	slog.Debug("downloaded attachment", "kind", a.Kind, "file", tmp.Path, "bytes", n)
	return tmp, nil
}

func (f *Fetcher) download(ctx context.Context, url, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	// os.Create truncates, an existing file of the same name is overwritten.
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
