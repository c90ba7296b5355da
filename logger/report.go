package logger

import (
	"context"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

var (
	errorsSource   int64
	errorsPipeline int64
	errorsStorage  int64
	warnsSource    int64
	warnsPipeline  int64
	warnsStorage   int64
	liveFetches    int64
	fallbackHits   int64
	savesWritten   int64
)

func recordWarn(component string) {
	switch {
	case strings.Contains(component, "source"):
		atomic.AddInt64(&warnsSource, 1)
	case strings.Contains(component, "refresher"):
		atomic.AddInt64(&warnsPipeline, 1)
	case strings.Contains(component, "store"), strings.Contains(component, "history"), strings.Contains(component, "integrity"):
		atomic.AddInt64(&warnsStorage, 1)
	}
}

func recordError(component string) {
	switch {
	case strings.Contains(component, "source"):
		atomic.AddInt64(&errorsSource, 1)
	case strings.Contains(component, "refresher"):
		atomic.AddInt64(&errorsPipeline, 1)
	case strings.Contains(component, "store"), strings.Contains(component, "history"), strings.Contains(component, "integrity"):
		atomic.AddInt64(&errorsStorage, 1)
	}
}

// IncrementLiveFetch counts a price resolved by the remote API.
func IncrementLiveFetch() {
	atomic.AddInt64(&liveFetches, 1)
}

// IncrementFallback counts a price resolved by the fallback strategy.
func IncrementFallback() {
	atomic.AddInt64(&fallbackHits, 1)
}

// IncrementSave counts a completed portfolio save.
func IncrementSave() {
	atomic.AddInt64(&savesWritten, 1)
}

// StartReport begins periodic logging of system and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func logReport(log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"errors_source":   atomic.LoadInt64(&errorsSource),
		"errors_pipeline": atomic.LoadInt64(&errorsPipeline),
		"errors_storage":  atomic.LoadInt64(&errorsStorage),
		"warns_source":    atomic.LoadInt64(&warnsSource),
		"warns_pipeline":  atomic.LoadInt64(&warnsPipeline),
		"warns_storage":   atomic.LoadInt64(&warnsStorage),
		"live_fetches":    atomic.LoadInt64(&liveFetches),
		"fallback_hits":   atomic.LoadInt64(&fallbackHits),
		"saves_written":   atomic.LoadInt64(&savesWritten),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
	}
	if memStats != nil {
		fields["memory_mb"] = int64(memStats.Used) / 1024 / 1024
	}
	if diskStats != nil {
		fields["disk_mb"] = int64(diskStats.Used) / 1024 / 1024
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")
}
