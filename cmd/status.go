package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/sharingcart/internal/version"
	"github.com/mordilloSan/sharingcart/storage"
)

const vacuumTimeout = time.Hour

// statusResponse is the body of GET /status. Cart statistics are inlined.
type statusResponse struct {
	Status    string       `json:"status"`
	Version   version.Info `json:"version"`
	BackupDir string       `json:"backup_dir,omitempty"`
	storage.Stats
	Memory   memoryReport `json:"memory"`
	Warnings []string     `json:"warnings,omitempty"`
}

type memoryReport struct {
	RSS           int64  `json:"rss_bytes"`
	GoAlloc       uint64 `json:"go_alloc_bytes"`
	GoHeapInuse   uint64 `json:"go_heap_inuse_bytes"`
	GoHeapIdle    uint64 `json:"go_heap_idle_bytes"`
	GoHeapRelease uint64 `json:"go_heap_released_bytes"`
	GoSys         uint64 `json:"go_sys_bytes"`
	GoNumGC       uint32 `json:"go_num_gc"`
	CgroupCurrent int64  `json:"cgroup_memory_current_bytes,omitempty"`
	CgroupAnon    int64  `json:"cgroup_memory_anon_bytes,omitempty"`
	CgroupFile    int64  `json:"cgroup_memory_file_bytes,omitempty"`
}

func (d *daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	busy := d.running.Load()

	resp := statusResponse{Status: "idle", Version: version.Get()}
	if busy {
		resp.Status = "maintenance"
	}
	if d.area != nil {
		resp.BackupDir = d.area.Dir()
	}

	stats, err := d.store.GetStats(r.Context())
	switch {
	case err == nil:
		resp.Stats = *stats
	case busy:
		// vacuum can hold the database; report what we have
		logger.Warnf("Status: cart stats unavailable during maintenance: %v", err)
		resp.Warnings = append(resp.Warnings, "stats unavailable: "+err.Error())
	default:
		http.Error(w, fmt.Sprintf("error loading stats: %v", err), http.StatusInternalServerError)
		return
	}

	resp.Memory, resp.Warnings = readMemory(resp.Warnings)
	writeJSON(w, resp)
}

// readMemory collects Go runtime, process and cgroup memory figures. Missing
// process or cgroup data only adds a warning.
func readMemory(warnings []string) (memoryReport, []string) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m := memoryReport{
		GoAlloc:       ms.Alloc,
		GoHeapInuse:   ms.HeapInuse,
		GoHeapIdle:    ms.HeapIdle,
		GoHeapRelease: ms.HeapReleased,
		GoSys:         ms.Sys,
		GoNumGC:       ms.NumGC,
	}

	if rss, err := residentBytes(); err != nil {
		warnings = append(warnings, "rss unavailable: "+err.Error())
	} else {
		m.RSS = rss
	}

	if dir, err := cgroupDir(); err != nil {
		warnings = append(warnings, "cgroup unavailable: "+err.Error())
	} else {
		m.CgroupCurrent, _ = readInt64File(filepath.Join(dir, "memory.current"))
		stat, err := readKeyed(filepath.Join(dir, "memory.stat"), " ")
		if err == nil {
			m.CgroupAnon = stat["anon"]
			m.CgroupFile = stat["file"]
		}
	}
	return m, warnings
}

// residentBytes reads VmRSS from /proc/self/status.
func residentBytes() (int64, error) {
	fields, err := readKeyed("/proc/self/status", ":")
	if err != nil {
		return 0, err
	}
	kb, ok := fields["VmRSS"]
	if !ok {
		return 0, errors.New("VmRSS not found")
	}
	return kb * 1024, nil
}

// cgroupDir resolves the unified (v2) cgroup of this process.
func cgroupDir() (string, error) {
	raw, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if rel, ok := strings.CutPrefix(line, "0::"); ok {
			return filepath.Join("/sys/fs/cgroup", rel), nil
		}
	}
	return "", errors.New("cgroup v2 path not found")
}

// readKeyed parses "key<sep> value [unit]" lines into integers. Lines whose
// value is not a number are skipped.
func readKeyed(path, sep string) (map[string]int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		key, rest, ok := strings.Cut(sc.Text(), sep)
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		if v, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			out[strings.TrimSpace(key)] = v
		}
	}
	return out, sc.Err()
}

func readInt64File(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
}

// vacuumPhase reports progress of runVacuum; nil disables reporting.
type vacuumPhase func(phase, message string)

// runVacuum checkpoints the WAL, vacuums the cart database, then checkpoints
// again and returns freed memory to SQLite. Checkpoint failures are logged
// and reported but do not stop the vacuum.
func (d *daemon) runVacuum(ctx context.Context, report vacuumPhase) (storage.VacuumStats, error) {
	if report == nil {
		report = func(string, string) {}
	}
	ctx, cancel := context.WithTimeout(ctx, vacuumTimeout)
	defer cancel()

	report("pre_checkpoint", "Running WAL checkpoint before vacuum...")
	if _, err := storage.WALCheckpointTruncate(ctx, d.db); err != nil {
		logger.Warnf("Vacuum: checkpoint before VACUUM failed: %v", err)
		report("pre_checkpoint", fmt.Sprintf("WAL checkpoint warning: %v", err))
	}

	report("vacuum", "Running VACUUM...")
	vs, err := storage.Vacuum(ctx, d.db)
	if err != nil {
		logger.Errorf("Vacuum of cart database failed: %v", err)
		return vs, err
	}
	logger.Infof("Cart database vacuumed in %v", vs.Duration)

	report("post_checkpoint", "Running WAL checkpoint after vacuum...")
	if _, err := storage.WALCheckpointTruncate(ctx, d.db); err != nil {
		logger.Warnf("Vacuum: checkpoint after VACUUM failed: %v", err)
	}
	_ = storage.ReleaseSQLiteMemory(ctx, d.db)
	return vs, nil
}

func (d *daemon) handleVacuum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "use POST", http.StatusMethodNotAllowed)
		return
	}
	if !d.tryLockMaintenance() {
		http.Error(w, "maintenance already running", http.StatusConflict)
		return
	}

	go func() {
		defer d.unlockMaintenance()
		_, _ = d.runVacuum(context.Background(), nil)
	}()

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "running"})
}
