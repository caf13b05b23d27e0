package sqlite

import (
	"testing"
	"time"

	"github.com/jsvoboda/webshare_downloader/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *DownloadRepository {
	t.Helper()

	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewDownloadRepository(db)
}

func TestDownloadRepository_TrackAndGet(t *testing.T) {
	repo := newTestRepository(t)

	finished := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.TrackDownload(storage.DownloadRecord{
		Ident:      "abc123",
		FileName:   "movie.mkv",
		FilePath:   "/downloads/movie.mkv",
		Bytes:      1048576,
		Status:     "completed",
		FinishedAt: finished,
	}))

	records, err := repo.GetDownloads()
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.NotZero(t, rec.ID)
	assert.Equal(t, "abc123", rec.Ident)
	assert.Equal(t, "movie.mkv", rec.FileName)
	assert.Equal(t, "/downloads/movie.mkv", rec.FilePath)
	assert.Equal(t, int64(1048576), rec.Bytes)
	assert.Equal(t, "completed", rec.Status)
	assert.True(t, rec.FinishedAt.Equal(finished))
}

func TestDownloadRepository_GetEmpty(t *testing.T) {
	repo := newTestRepository(t)

	records, err := repo.GetDownloads()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDownloadRepository_Delete(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.TrackDownload(storage.DownloadRecord{
		Ident:      "abc123",
		FileName:   "a.bin",
		FilePath:   "/downloads/a.bin",
		Status:     "completed",
		FinishedAt: time.Now(),
	}))
	require.NoError(t, repo.TrackDownload(storage.DownloadRecord{
		Ident:      "def456",
		FileName:   "b.bin",
		FilePath:   "/downloads/b.bin",
		Status:     "error",
		FinishedAt: time.Now(),
	}))

	records, err := repo.GetDownloads()
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.NoError(t, repo.DeleteDownload(records[0].ID))

	records, err = repo.GetDownloads()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "def456", records[0].Ident)
}

func TestDownloadRepository_DeleteMissingIsNoop(t *testing.T) {
	repo := newTestRepository(t)

	assert.NoError(t, repo.DeleteDownload(9999))
}
