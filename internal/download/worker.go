package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jsvoboda/webshare_downloader/internal/download/progress"
	"github.com/jsvoboda/webshare_downloader/internal/logctx"
	"github.com/jsvoboda/webshare_downloader/internal/storage"
	"github.com/jsvoboda/webshare_downloader/internal/telemetry"
	"golang.org/x/sync/semaphore"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	chunkSize = 128 * 1024

	// progressReportInterval caps how often a worker touches the registry so
	// fast streams don't serialize pollers behind the lock. The first chunk
	// always reports, so even tiny downloads are visible mid-transfer.
	progressReportInterval = time.Second
)

// cancelEntry identifies one worker's cancel function, so a worker tearing
// down can tell its own registration apart from a successor's under the same
// identifier.
type cancelEntry struct {
	cancel context.CancelFunc
}

// Manager owns the download workers. Each accepted request gets its own
// goroutine that streams the file to disk and mutates exactly one registry
// record; the HTTP layer only ever reads snapshots.
type Manager struct {
	registry    *Registry
	client      Client
	downloadDir string
	history     storage.DownloadWriteRepository
	telemetry   *telemetry.Telemetry
	sem         *semaphore.Weighted

	mu      sync.Mutex
	cancels map[string]*cancelEntry

	OnDownloadFinished chan Record
	OnDownloadFailed   chan Record
}

// NewManager creates a download manager. history and tel may be nil when
// durable bookkeeping or metrics are not wanted (tests).
func NewManager(
	registry *Registry,
	client Client,
	downloadDir string,
	maxParallel int64,
	history storage.DownloadWriteRepository,
	tel *telemetry.Telemetry,
) *Manager {
	return &Manager{
		registry:    registry,
		client:      client,
		downloadDir: downloadDir,
		history:     history,
		telemetry:   tel,
		sem:         semaphore.NewWeighted(maxParallel),
		cancels:     make(map[string]*cancelEntry),

		OnDownloadFinished: make(chan Record, 8),
		OnDownloadFailed:   make(chan Record, 8),
	}
}

// Start accepts a download request, registers a queued record and spawns the
// worker. It returns immediately; progress is observed via the registry.
// The worker deliberately outlives the HTTP request that spawned it.
func (m *Manager) Start(ctx context.Context, ident, fileName string) (Record, error) {
	rec, err := m.registry.Create(ident, fileName)
	if err != nil {
		return rec, err
	}

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	entry := &cancelEntry{cancel: cancel}

	m.mu.Lock()
	m.cancels[ident] = entry
	m.mu.Unlock()

	go m.run(wctx, entry, ident, fileName)

	return rec, nil
}

// Cancel requests cooperative cancellation of a running worker. The worker
// observes it at the next chunk boundary and parks the record in the
// cancelled terminal state.
func (m *Manager) Cancel(ident string) error {
	m.mu.Lock()
	entry, ok := m.cancels[ident]
	m.mu.Unlock()

	if !ok {
		return ErrTaskNotFound
	}

	entry.cancel()

	return nil
}

// Close cancels all running workers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.cancels {
		entry.cancel()
	}
}

func (m *Manager) run(ctx context.Context, entry *cancelEntry, ident, fileName string) {
	logger := logctx.LoggerFromContext(ctx).With("download_id", ident)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("download worker panic", "panic", r, "stack", string(debug.Stack()))

			m.fail(ident, fmt.Errorf("worker panic: %v", r))
		}

		entry.cancel()

		// Unregister only our own entry. A restart for the same ident may
		// already have replaced it with a fresh worker's cancel function.
		m.mu.Lock()
		if m.cancels[ident] == entry {
			delete(m.cancels, ident)
		}
		m.mu.Unlock()
	}()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.cancelled(ident)

		return
	}
	defer m.sem.Release(1)

	if m.telemetry != nil {
		m.telemetry.IncrementActiveDownloads()
		defer m.telemetry.DecrementActiveDownloads()
	}

	start := time.Now()

	err := m.download(ctx, ident, fileName)

	switch {
	case err == nil:
		logger.Info("download completed", "elapsed", time.Since(start).String())

		m.emit(m.OnDownloadFinished, ident)
	case errors.Is(err, context.Canceled):
		logger.Info("download cancelled")

		m.cancelled(ident)
	default:
		logger.Error("download failed", "err", err)

		m.fail(ident, err)
		m.emit(m.OnDownloadFailed, ident)
	}
}

func (m *Manager) download(ctx context.Context, ident, fileName string) error {
	logger := logctx.LoggerFromContext(ctx)

	if err := m.registry.Update(ident, func(rec *Record) {
		rec.Status = StatusDownloading
		rec.Message = "Preparing download..."
	}); err != nil {
		return err
	}

	link, err := m.client.FileLink(ctx, ident)
	if err != nil {
		return fmt.Errorf("failed to resolve download link: %w", err)
	}

	if fileName == "" {
		fileName = link.Name
	}

	// The name may come from the remote API; never let it escape the
	// download directory.
	fileName = filepath.Base(fileName)

	if err := os.MkdirAll(m.downloadDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	body, size, err := m.client.OpenFile(ctx, link.URL)
	if err != nil {
		return fmt.Errorf("failed to open download stream: %w", err)
	}
	defer body.Close()

	if size < 0 && link.Size > 0 {
		size = link.Size
	}

	if err := m.registry.Update(ident, func(rec *Record) {
		rec.FileName = fileName
		rec.BytesExpected = size

		if size > 0 {
			rec.Message = "Downloading..."
		} else {
			rec.Message = "Downloading... (size unknown)"
		}
	}); err != nil {
		return err
	}

	targetPath := filepath.Join(m.downloadDir, fileName)

	out, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	defer out.Close()

	logger.Info("downloading file", "file_path", targetPath, "file_size", humanize.Bytes(uint64(max(size, 0))))

	written, err := m.copyChunks(ctx, out, body, ident, size)

	m.updateProgress(ident, written, size)

	if err != nil {
		// Partial output stays in place; a retried download may reuse it.
		return err
	}

	if size > 0 && written != size {
		return fmt.Errorf("short download: got %d of %d bytes", written, size)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush target file: %w", err)
	}

	// Files are served by other containers in the stack; make them
	// group/world readable.
	if err := os.Chmod(targetPath, filePerm); err != nil {
		logger.Warn("failed to set file permissions", "file_path", targetPath, "err", err)
	}

	if err := m.registry.Update(ident, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.Message = "Download completed"
		rec.BytesWritten = written
	}); err != nil {
		return err
	}

	m.recordHistory(ctx, ident, fileName, targetPath, written, string(StatusCompleted))

	return nil
}

// copyChunks streams body to out in bounded chunks, checking for cancellation
// at every chunk boundary. Registry updates are driven by the progress writer
// after each chunk lands on disk, so reported byte counts never run ahead of
// the file, and their rate is bounded by progressReportInterval.
func (m *Manager) copyChunks(ctx context.Context, out *os.File, body io.Reader, ident string, size int64) (int64, error) {
	pw := progress.NewWriter(out, size, progressReportInterval, func(written, total int64) {
		m.updateProgress(ident, written, total)
	})

	buf := make([]byte, chunkSize)

	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			wn, werr := pw.Write(buf[:n])
			written += int64(wn)

			if werr != nil {
				return written, fmt.Errorf("failed to write file: %w", werr)
			}
		}

		if rerr == io.EOF {
			return written, nil
		}

		if rerr != nil {
			return written, &NetworkError{Operation: "download_stream", APIMessage: rerr.Error(), Err: rerr}
		}
	}
}

func (m *Manager) updateProgress(ident string, written, total int64) {
	_ = m.registry.Update(ident, func(rec *Record) {
		rec.BytesWritten = written

		if total > 0 {
			pct := int(written * 100 / total)
			rec.SetProgress(pct)
			rec.Message = fmt.Sprintf("Downloading... %d%%", pct)
		} else {
			rec.Message = "Downloading... " + humanize.Bytes(uint64(written)) + " (size unknown)"
		}
	})
}

func (m *Manager) fail(ident string, err error) {
	_ = m.registry.Update(ident, func(rec *Record) {
		rec.Status = StatusError
		rec.Error = UserMessage(err)
		rec.Message = "Download failed"
	})

	rec, gerr := m.registry.Get(ident)
	if gerr != nil || rec.Status != StatusError {
		// Already terminal in another state (e.g. a panic after completion);
		// the record stayed frozen, so no failure history row is written.
		return
	}

	path := filepath.Join(m.downloadDir, rec.FileName)
	m.recordHistory(context.Background(), ident, rec.FileName, path, rec.BytesWritten, string(StatusError))
}

func (m *Manager) cancelled(ident string) {
	_ = m.registry.Update(ident, func(rec *Record) {
		rec.Status = StatusCancelled
		rec.Message = "Download cancelled"
	})
}

func (m *Manager) recordHistory(ctx context.Context, ident, fileName, filePath string, bytes int64, status string) {
	if m.history == nil {
		return
	}

	logger := logctx.LoggerFromContext(ctx)

	if err := m.history.TrackDownload(storage.DownloadRecord{
		Ident:      ident,
		FileName:   fileName,
		FilePath:   filePath,
		Bytes:      bytes,
		Status:     status,
		FinishedAt: time.Now(),
	}); err != nil {
		logger.Error("failed to record download history", "download_id", ident, "err", err)
	}
}

func (m *Manager) emit(ch chan Record, ident string) {
	rec, err := m.registry.Get(ident)
	if err != nil {
		return
	}

	select {
	case ch <- rec:
	default: // no listener, drop the event
	}
}
