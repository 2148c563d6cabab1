package metrics

import (
	"context"
	"fmt"
	"os"
	"runtime"
)

// PipelineState reports what the running resolver holds in memory.
type PipelineState interface {
	TableSize() int
	CachedEstimates() int
}

// Health is a point-in-time view of the resolver and its history store.
type Health struct {
	TableEntries    int
	CachedEstimates int
	StoredTraces    int64
	HeapMB          uint64
	Goroutines      int
	DatabaseSize    string
}

// Health collects the report. dbPath is the SQLite file behind the store; a
// nil state leaves the pipeline fields at zero.
func (s *Store) Health(ctx context.Context, dbPath string, state PipelineState) (Health, error) {
	var h Health
	if state != nil {
		h.TableEntries = state.TableSize()
		h.CachedEstimates = state.CachedEstimates()
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resolution_traces`).Scan(&h.StoredTraces); err != nil {
		return h, fmt.Errorf("failed to count traces: %w", err)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	h.HeapMB = m.HeapAlloc / 1024 / 1024
	h.Goroutines = runtime.NumGoroutine()
	h.DatabaseSize = humanSize(databaseBytes(dbPath))
	return h, nil
}

// databaseBytes adds up the database file and its WAL and shared-memory files.
func databaseBytes(dbPath string) int64 {
	var size int64
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			size += info.Size()
		}
	}
	return size
}

func humanSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
