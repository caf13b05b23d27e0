package storage

import "time"

// DownloadRecord is one row of durable download history. Unlike the in-memory
// task registry, history survives restarts and drives retention cleanup.
type DownloadRecord struct {
	ID         int64
	Ident      string
	FileName   string
	FilePath   string
	Bytes      int64
	Status     string
	FinishedAt time.Time
}

type DownloadReadRepository interface {
	GetDownloads() ([]DownloadRecord, error)
}

type DownloadWriteRepository interface {
	TrackDownload(rec DownloadRecord) error
	DeleteDownload(id int64) error
}
