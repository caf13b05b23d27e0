package sqlite

import (
	"context"
	"database/sql"

	"github.com/jsvoboda/webshare_downloader/internal/storage"
	"github.com/jsvoboda/webshare_downloader/internal/telemetry"
)

// InstrumentedDownloadRepository wraps DownloadRepository with telemetry.
type InstrumentedDownloadRepository struct {
	repo      *DownloadRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedDownloadRepository creates a new instrumented download repository.
func NewInstrumentedDownloadRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedDownloadRepository {
	return &InstrumentedDownloadRepository{
		repo:      NewDownloadRepository(dbConn),
		telemetry: tel,
	}
}

// GetDownloads retrieves all history rows with telemetry.
func (r *InstrumentedDownloadRepository) GetDownloads() ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "get_downloads", func(ctx context.Context) error {
		result, err = r.repo.GetDownloads()

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// TrackDownload inserts a history row with telemetry.
func (r *InstrumentedDownloadRepository) TrackDownload(rec storage.DownloadRecord) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "track_download", func(ctx context.Context) error {
		return r.repo.TrackDownload(rec)
	})
}

// DeleteDownload removes a history row with telemetry.
func (r *InstrumentedDownloadRepository) DeleteDownload(id int64) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "delete_download", func(ctx context.Context) error {
		return r.repo.DeleteDownload(id)
	})
}
