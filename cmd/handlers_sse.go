package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/sharingcart/backup"
)

// SSEWriter streams server-sent events, flushing after each one.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for an event stream. It fails when w cannot flush.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // nginx

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// SendEvent writes one event whose data is the JSON encoding of data.
func (s *SSEWriter) SendEvent(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SendError writes an "error" event carrying msg.
func (s *SSEWriter) SendError(msg string) error {
	return s.SendEvent("error", map[string]string{"message": msg})
}

// ScanFileEvent reports one backup file seen during a rescan.
type ScanFileEvent struct {
	Name   string `json:"name"`
	Size   int64  `json:"size,omitempty"`
	FileID int64  `json:"file_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ScanCompleteEvent closes a backup rescan stream.
type ScanCompleteEvent struct {
	Registered int   `json:"registered"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}

// VacuumProgressEvent names the vacuum phase being entered.
type VacuumProgressEvent struct {
	Phase   string `json:"phase"`
	Message string `json:"message,omitempty"`
}

type VacuumCompleteEvent struct {
	DurationMs int64 `json:"duration_ms"`
}

// openStream checks the method, takes the maintenance lock and opens an event
// stream. On success the caller must call d.unlockMaintenance.
func (d *daemon) openStream(w http.ResponseWriter, r *http.Request) (*SSEWriter, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "use POST", http.StatusMethodNotAllowed)
		return nil, false
	}
	if !d.tryLockMaintenance() {
		http.Error(w, "maintenance already running", http.StatusConflict)
		return nil, false
	}
	sse, err := NewSSEWriter(w)
	if err != nil {
		d.unlockMaintenance()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return sse, true
}

// handleScanStream handles POST /scan/stream, re-registering every backup file.
func (d *daemon) handleScanStream(w http.ResponseWriter, r *http.Request) {
	if d.area == nil && r.Method == http.MethodPost {
		http.Error(w, "backup directory not configured", http.StatusNotFound)
		return
	}
	sse, ok := d.openStream(w, r)
	if !ok {
		return
	}
	defer d.unlockMaintenance()

	_ = sse.SendEvent("started", map[string]string{"status": "running", "dir": d.area.Dir()})

	stats, err := d.area.ScanFunc(r.Context(), func(ev backup.ScanEvent) {
		out := ScanFileEvent{Name: ev.Name, Size: ev.Ref.Size, FileID: ev.Ref.ID}
		if ev.Err != nil {
			out.Error = ev.Err.Error()
		}
		_ = sse.SendEvent("file", out)
	})
	if err != nil {
		logger.Errorf("Backup rescan failed: %v", err)
		_ = sse.SendError(fmt.Sprintf("scan failed: %v", err))
		return
	}

	_ = sse.SendEvent("complete", ScanCompleteEvent{
		Registered: stats.Registered,
		Skipped:    stats.Skipped,
		Failed:     stats.Failed,
		DurationMs: stats.Duration.Milliseconds(),
	})
}

// handleVacuumStream handles POST /vacuum/stream, reporting each phase.
func (d *daemon) handleVacuumStream(w http.ResponseWriter, r *http.Request) {
	sse, ok := d.openStream(w, r)
	if !ok {
		return
	}
	defer d.unlockMaintenance()

	start := time.Now()
	_ = sse.SendEvent("started", map[string]string{"status": "running"})
	_, err := d.runVacuum(r.Context(), func(phase, msg string) {
		_ = sse.SendEvent("progress", VacuumProgressEvent{Phase: phase, Message: msg})
	})
	if err != nil {
		_ = sse.SendError(fmt.Sprintf("vacuum failed: %v", err))
		return
	}
	_ = sse.SendEvent("complete", VacuumCompleteEvent{DurationMs: time.Since(start).Milliseconds()})
}
