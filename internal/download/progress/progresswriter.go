package progress

import (
	"io"
	"time"
)

// Writer wraps an io.Writer and reports cumulative bytes written via a
// callback. The callback fires after the underlying write lands, so reported
// counts never overstate what the destination holds. The first write always
// reports; after that reports are rate-limited to one per interval, making the
// effective rate "once per write or once per interval, whichever is coarser".
type Writer struct {
	Writer     io.Writer
	Total      int64
	OnProgress func(written int64, total int64)

	written    int64
	interval   time.Duration
	lastReport time.Time

	now func() time.Time
}

func NewWriter(w io.Writer, total int64, interval time.Duration, cb func(written int64, total int64)) *Writer {
	return &Writer{
		Writer:     w,
		Total:      total,
		OnProgress: cb,
		interval:   interval,
		now:        time.Now,
	}
}

func (pw *Writer) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	if n > 0 {
		pw.written += int64(n)

		if pw.lastReport.IsZero() || pw.now().Sub(pw.lastReport) >= pw.interval {
			pw.OnProgress(pw.written, pw.Total)
			pw.lastReport = pw.now()
		}
	}

	return n, err
}
