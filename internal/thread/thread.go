// Package thread holds the provider-agnostic conversation model shared by the
// fetch, export, and publish layers.
package thread

import (
	"strconv"
	"strings"
	"time"
)

// Message is one message in a conversation thread.
type Message struct {
	// Timestamp is the source-assigned message timestamp, e.g. "1700000000.000100".
	// The root message's timestamp doubles as the thread fingerprint.
	Timestamp string

	// ThreadTimestamp is the timestamp of the thread's root message.
	// Empty or equal to Timestamp for root messages.
	ThreadTimestamp string

	AuthorID   string
	AuthorName string // resolved display name, may be empty
	Text       string
	Files      []File
}

// File is an attachment on a message.
type File struct {
	ID          string
	Name        string
	MimeType    string
	DownloadURL string
}

// IsThreadRoot reports whether m is the root of its own thread (a candidate
// thread) rather than a reply inside someone else's.
func (m Message) IsThreadRoot() bool {
	return m.ThreadTimestamp == "" || m.ThreadTimestamp == m.Timestamp
}

// Fingerprint returns the stable per-thread identifier for the thread m
// belongs to.
func (m Message) Fingerprint() string {
	if m.ThreadTimestamp != "" {
		return m.ThreadTimestamp
	}
	return m.Timestamp
}

// Time converts a source timestamp ("seconds.fraction") to a time.Time.
// Returns the zero time if the timestamp doesn't parse.
func Time(ts string) time.Time {
	secs, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}
