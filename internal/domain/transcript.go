package domain

import "time"

// Transcript senders that are not worker agents.
const (
	SenderUser   = "user"
	SenderMaster = "master"
)

// TranscriptEntry is one message in the chat-style run narration. The
// transcript is append-only and ordered; entries are never mutated or
// removed for the lifetime of the session.
type TranscriptEntry struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
