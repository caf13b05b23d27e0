package progress

import (
	"bytes"
	"testing"
	"time"
)

func newClockedWriter(dst *bytes.Buffer, total int64, interval time.Duration, cb func(written, total int64)) (*Writer, *time.Time) {
	pw := NewWriter(dst, total, interval, cb)

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pw.now = func() time.Time { return current }

	return pw, &current
}

func TestWriter_FirstWriteReportsImmediately(t *testing.T) {
	var dst bytes.Buffer

	var reports []int64

	pw, _ := newClockedWriter(&dst, 1000, time.Second, func(written, total int64) {
		reports = append(reports, written)

		if total != 1000 {
			t.Errorf("total = %d, want 1000", total)
		}
	})

	if _, err := pw.Write(make([]byte, 250)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if len(reports) != 1 || reports[0] != 250 {
		t.Fatalf("expected an immediate report of 250 bytes, got %v", reports)
	}
}

func TestWriter_RateLimitedToInterval(t *testing.T) {
	var dst bytes.Buffer

	var reports []int64

	pw, clock := newClockedWriter(&dst, -1, time.Second, func(written, _ int64) {
		reports = append(reports, written)
	})

	// burst of writes within the same instant: only the first reports
	for i := 0; i < 5; i++ {
		if _, err := pw.Write(make([]byte, 100)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	if len(reports) != 1 {
		t.Fatalf("expected 1 report inside the interval, got %v", reports)
	}

	// once the interval elapses the next write reports the cumulative count
	*clock = clock.Add(time.Second)

	if _, err := pw.Write(make([]byte, 100)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if len(reports) != 2 || reports[1] != 600 {
		t.Fatalf("expected a cumulative report of 600 bytes, got %v", reports)
	}
}

func TestWriter_ReportsAfterUnderlyingWrite(t *testing.T) {
	var dst bytes.Buffer

	pw, _ := newClockedWriter(&dst, -1, time.Second, func(written, _ int64) {
		// the destination must already hold every byte being reported
		if int64(dst.Len()) < written {
			t.Errorf("reported %d bytes but destination holds %d", written, dst.Len())
		}
	})

	for i := 0; i < 3; i++ {
		if _, err := pw.Write(make([]byte, 64)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	if dst.Len() != 192 {
		t.Fatalf("destination holds %d bytes, want 192", dst.Len())
	}
}

func TestWriter_SlowWritesReportPerWrite(t *testing.T) {
	var dst bytes.Buffer

	var reports []int64

	pw, clock := newClockedWriter(&dst, -1, time.Second, func(written, _ int64) {
		reports = append(reports, written)
	})

	// each write lands after more than the interval has passed
	for i := 0; i < 3; i++ {
		if _, err := pw.Write(make([]byte, 10)); err != nil {
			t.Fatalf("write failed: %v", err)
		}

		*clock = clock.Add(2 * time.Second)
	}

	want := []int64{10, 20, 30}
	if len(reports) != len(want) {
		t.Fatalf("got reports %v, want %v", reports, want)
	}

	for i, w := range want {
		if reports[i] != w {
			t.Errorf("report[%d] = %d, want %d", i, reports[i], w)
		}
	}
}
