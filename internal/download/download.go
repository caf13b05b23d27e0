package download

import (
	"context"
	"io"
	"time"
)

// Status is the lifecycle state of a tracked download.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed from this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// rank orders statuses so transitions can only move forward.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusDownloading:
		return 1
	case StatusCompleted, StatusError, StatusCancelled:
		return 2
	}

	return -1
}

// Record tracks the state of one file transfer from the moment it is accepted
// until it is evicted from the registry.
type Record struct {
	ID       string
	FileName string
	Status   Status

	// Progress is a 0-100 percentage. It is nil while the total size is
	// unknown (indeterminate progress).
	Progress *int

	Message string
	Error   string

	// BytesExpected is negative when the source did not report a size.
	BytesExpected int64
	BytesWritten  int64

	CreatedAt   time.Time
	CompletedAt time.Time
}

// SetProgress replaces the progress percentage. A fresh pointer is allocated so
// snapshots handed out by the registry are never mutated behind a reader's back.
func (r *Record) SetProgress(pct int) {
	if pct < 0 {
		pct = 0
	}

	if pct > 100 {
		pct = 100
	}

	r.Progress = &pct
}

// Link is a resolved download source for a single file.
type Link struct {
	URL  string
	Name string
	Size int64
}

// Client is the external file-sharing API surface the worker needs.
type Client interface {
	// FileLink resolves a file identifier into a direct download link.
	FileLink(ctx context.Context, ident string) (*Link, error)

	// OpenFile opens a streaming read of the given link URL. The returned
	// size is negative when the server does not report Content-Length.
	OpenFile(ctx context.Context, url string) (io.ReadCloser, int64, error)
}
