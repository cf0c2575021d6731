package main

import "fmt"

// FetchError is a failure resolving or downloading an attachment.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return "fetch: " + e.Op + ": " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// TranscriptionError is a failure decoding the audio file or running the model.
type TranscriptionError struct {
	Engine string
	Err    error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcribe (%s): %s", e.Engine, e.Err)
}
func (e *TranscriptionError) Unwrap() error { return e.Err }

// ReplyError is a failure sending an outbound message.
type ReplyError struct {
	ChatID int64
	Err    error
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("reply to chat %d: %s", e.ChatID, e.Err)
}
func (e *ReplyError) Unwrap() error { return e.Err }

// ConnectionError ends a bot session. Only the supervisor handles it.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string { return "connection: " + e.Op + ": " + e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }
