package services

import (
	"context"
	"os"
	"sync"
	"time"

	"videoportal-backend-go/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type MetricSample struct {
	CapturedAt        time.Time `json:"capturedAt"`
	UsersTotal        int64     `json:"usersTotal"`
	UsersPending      int64     `json:"usersPending"`
	VideosTotal       int64     `json:"videosTotal"`
	CommentsTotal     int64     `json:"commentsTotal"`
	ViewsTotal        int64     `json:"viewsTotal"`
	ProcessRSSBytes   int64     `json:"processRssBytes"`
	SystemMemoryTotal int64     `json:"systemMemoryTotalBytes"`
	SystemMemoryUsed  int64     `json:"systemMemoryUsedBytes"`
	DiskTotalBytes    int64     `json:"diskTotalBytes"`
	DiskUsedBytes     int64     `json:"diskUsedBytes"`
	ProcessCpuLoad    float64   `json:"processCpuLoad"`
	SystemCpuLoad     float64   `json:"systemCpuLoad"`
}

type portalCounts struct {
	UsersTotal    int64 `db:"users_total"`
	UsersPending  int64 `db:"users_pending"`
	VideosTotal   int64 `db:"videos_total"`
	CommentsTotal int64 `db:"comments_total"`
	ViewsTotal    int64 `db:"views_total"`
}

func countPortal(ctx context.Context, q sqlx.ExtContext) (portalCounts, error) {
	var counts portalCounts
	err := sqlx.GetContext(ctx, q, &counts, `
SELECT
  (SELECT COUNT(*) FROM users) AS users_total,
  (SELECT COUNT(*) FROM users WHERE is_active = FALSE) AS users_pending,
  (SELECT COUNT(*) FROM videos) AS videos_total,
  (SELECT COUNT(*) FROM comments) AS comments_total,
  (SELECT CAST(COALESCE(SUM(view_count), 0) AS BIGINT) FROM videos) AS views_total
`)
	return counts, err
}

// CaptureMetrics samples portal counters and host usage and stores the
// sample. Host readings that fail are recorded as zero.
func CaptureMetrics(ctx context.Context, db *sqlx.DB, diskPath string, now time.Time) (MetricSample, error) {
	counts, err := countPortal(ctx, db)
	if err != nil {
		return MetricSample{}, err
	}
	sample := MetricSample{
		CapturedAt:    now.UTC(),
		UsersTotal:    counts.UsersTotal,
		UsersPending:  counts.UsersPending,
		VideosTotal:   counts.VideosTotal,
		CommentsTotal: counts.CommentsTotal,
		ViewsTotal:    counts.ViewsTotal,
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if rss, _ := proc.MemoryInfoWithContext(ctx); rss != nil {
			sample.ProcessRSSBytes = int64(rss.RSS)
		}
		if cpuPerc, err := proc.CPUPercentWithContext(ctx); err == nil {
			sample.ProcessCpuLoad = cpuPerc / 100.0
		}
	}
	if memStat, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sample.SystemMemoryTotal = int64(memStat.Total)
		sample.SystemMemoryUsed = int64(memStat.Total - memStat.Available)
	}
	diskStat, err := disk.UsageWithContext(ctx, diskPath)
	if err != nil {
		diskStat, err = disk.UsageWithContext(ctx, "/")
	}
	if err == nil {
		sample.DiskTotalBytes = int64(diskStat.Total)
		sample.DiskUsedBytes = int64(diskStat.Used)
	}
	if sysCPU, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(sysCPU) > 0 {
		sample.SystemCpuLoad = sysCPU[0] / 100.0
	}

	_, err = db.ExecContext(ctx, db.Rebind(`
INSERT INTO server_metric_samples (
  id, captured_at, users_total, users_pending, videos_total, comments_total, views_total,
  process_rss_bytes, system_memory_total_bytes, system_memory_used_bytes,
  disk_total_bytes, disk_used_bytes, process_cpu_load, system_cpu_load
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
`), uuid.NewString(), sample.CapturedAt, sample.UsersTotal, sample.UsersPending, sample.VideosTotal,
		sample.CommentsTotal, sample.ViewsTotal, sample.ProcessRSSBytes, sample.SystemMemoryTotal,
		sample.SystemMemoryUsed, sample.DiskTotalBytes, sample.DiskUsedBytes, sample.ProcessCpuLoad, sample.SystemCpuLoad)
	if err != nil {
		return MetricSample{}, err
	}
	return sample, nil
}

// LatestMetrics returns up to limit samples, oldest first.
func LatestMetrics(ctx context.Context, db *sqlx.DB, limit int) ([]MetricSample, error) {
	rows := []models.ServerMetricSample{}
	if err := sqlx.SelectContext(ctx, db, &rows, db.Rebind(`
SELECT id, captured_at, users_total, users_pending, videos_total, comments_total, views_total,
       process_rss_bytes, system_memory_total_bytes, system_memory_used_bytes,
       disk_total_bytes, disk_used_bytes, process_cpu_load, system_cpu_load
FROM server_metric_samples
ORDER BY captured_at DESC
LIMIT ?
`), limit); err != nil {
		return nil, err
	}
	items := make([]MetricSample, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		items = append(items, MetricSample{
			CapturedAt:        r.CapturedAt,
			UsersTotal:        r.UsersTotal,
			UsersPending:      r.UsersPending,
			VideosTotal:       r.VideosTotal,
			CommentsTotal:     r.CommentsTotal,
			ViewsTotal:        r.ViewsTotal,
			ProcessRSSBytes:   r.ProcessRSSBytes,
			SystemMemoryTotal: r.SystemMemoryTotal,
			SystemMemoryUsed:  r.SystemMemoryUsed,
			DiskTotalBytes:    r.DiskTotalBytes,
			DiskUsedBytes:     r.DiskUsedBytes,
			ProcessCpuLoad:    r.ProcessCpuLoad,
			SystemCpuLoad:     r.SystemCpuLoad,
		})
	}
	return items, nil
}

// MetricsHub fans samples out to connected websocket clients.
type MetricsHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	ch      chan MetricSample
}

func NewMetricsHub() *MetricsHub {
	return &MetricsHub{
		clients: map[*websocket.Conn]bool{},
		ch:      make(chan MetricSample, 16),
	}
}

func (h *MetricsHub) Run(ctx context.Context) {
	for {
		select {
		case sample := <-h.ch:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(sample); err != nil {
					delete(h.clients, conn)
					_ = conn.Close()
				}
			}
			h.mu.Unlock()
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.Close()
			}
			h.clients = map[*websocket.Conn]bool{}
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues a sample. Samples are dropped while the queue is full.
func (h *MetricsHub) Broadcast(sample MetricSample) {
	select {
	case h.ch <- sample:
	default:
	}
}

func (h *MetricsHub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

func (h *MetricsHub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

func (h *MetricsHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
