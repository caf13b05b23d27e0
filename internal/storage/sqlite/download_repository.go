package sqlite

import (
	"database/sql"
	"time"

	"github.com/jsvoboda/webshare_downloader/internal/storage"
)

// DownloadRepository stores download history rows in SQLite.
type DownloadRepository struct {
	db *sql.DB
}

func NewDownloadRepository(dbConn *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: dbConn}
}

func (r *DownloadRepository) GetDownloads() ([]storage.DownloadRecord, error) {
	rows, err := r.db.Query(`SELECT id, ident, file_name, file_path, bytes, status, finished_at FROM downloads`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []storage.DownloadRecord

	for rows.Next() {
		var record storage.DownloadRecord

		var finishedAt string

		if err := rows.Scan(&record.ID, &record.Ident, &record.FileName, &record.FilePath, &record.Bytes, &record.Status, &finishedAt); err != nil {
			return nil, err
		}

		record.FinishedAt, err = time.Parse(time.RFC3339, finishedAt)
		if err != nil {
			record.FinishedAt = time.Time{}
		}

		downloads = append(downloads, record)
	}

	return downloads, rows.Err()
}

func (r *DownloadRepository) TrackDownload(rec storage.DownloadRecord) error {
	_, err := r.db.Exec(
		`INSERT INTO downloads (ident, file_name, file_path, bytes, status, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Ident, rec.FileName, rec.FilePath, rec.Bytes, rec.Status, rec.FinishedAt.Format(time.RFC3339),
	)

	return err
}

func (r *DownloadRepository) DeleteDownload(id int64) error {
	_, err := r.db.Exec(`DELETE FROM downloads WHERE id = ?`, id)

	return err
}
