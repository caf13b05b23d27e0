package cleanup

import (
	"context"
	"os"
	"time"

	"github.com/jsvoboda/webshare_downloader/internal/logctx"
	"github.com/jsvoboda/webshare_downloader/internal/storage"
)

// Repository is the slice of the history store the cleaner needs.
type Repository interface {
	storage.DownloadReadRepository
	DeleteDownload(id int64) error
}

// DeleteExpiredFiles deletes downloaded artifacts older than keepDuration
// based on history records, pruning the matching rows. Failed downloads are
// pruned without touching the filesystem.
func DeleteExpiredFiles(ctx context.Context, repo Repository, keepDuration time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	records, err := repo.GetDownloads()
	if err != nil {
		return err
	}

	for _, rec := range records {
		finishedAt := rec.FinishedAt
		if finishedAt.IsZero() {
			// Unparseable timestamp; fall back to file mod time.
			if info, statErr := os.Stat(rec.FilePath); statErr == nil {
				finishedAt = info.ModTime()
			}
		}

		if now.Sub(finishedAt) <= keepDuration {
			continue
		}

		if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to delete expired file", "file", rec.FilePath, "err", err)

			continue
		}

		if err := repo.DeleteDownload(rec.ID); err != nil {
			logger.Error("failed to prune history record", "id", rec.ID, "err", err)

			continue
		}

		logger.Info("deleted expired file", "file", rec.FilePath)
	}

	return nil
}
