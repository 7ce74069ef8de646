package admission

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ifreecarve/mccibus/internal/logging"
	"github.com/ifreecarve/mccibus/internal/metrics"
)

// Config configures a Guard's static limits (§3.4).
type Config struct {
	MaxRequestsPerSec  int
	MaxGoroutines      int
	CPURejectThreshold float64 // percent, 0-100
}

// Guard gates new subscribe requests behind a request-rate limiter, a
// live goroutine-count limit, and a CPU threshold, mirroring the
// teacher's ResourceGuard.ShouldAcceptConnection for the bus's
// process_request path instead of WebSocket connection admission.
type Guard struct {
	cfg    Config
	logger zerolog.Logger

	requestLimiter *rate.Limiter
	goroutines     chan struct{}
	cpuMonitor     *CPUMonitor

	currentCPU atomic.Value // float64
}

// NewGuard constructs a Guard with fresh limiters.
func NewGuard(cfg Config, logger zerolog.Logger) *Guard {
	g := &Guard{
		cfg:            cfg,
		logger:         logger,
		requestLimiter: rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSec), cfg.MaxRequestsPerSec*2),
		goroutines:     make(chan struct{}, cfg.MaxGoroutines),
		cpuMonitor:     NewCPUMonitor(100 * time.Millisecond),
	}
	g.currentCPU.Store(0.0)
	return g
}

// ShouldAdmit reports whether a new subscribe request should be allowed
// to reach ProcessRequest at all, ahead of the quota ledger's own
// per-client admission (§4.F).
func (g *Guard) ShouldAdmit() (accept bool, reason string) {
	if !g.requestLimiter.Allow() {
		metrics.RequestsRejectedTotal.WithLabelValues("admission_rate").Inc()
		return false, "request rate limit exceeded"
	}

	currentCPU := g.currentCPU.Load().(float64)
	if currentCPU > g.cfg.CPURejectThreshold {
		metrics.RequestsRejectedTotal.WithLabelValues("admission_cpu").Inc()
		return false, fmt.Sprintf("CPU %.1f%% > %.1f%%", currentCPU, g.cfg.CPURejectThreshold)
	}

	if current := runtime.NumGoroutine(); current > g.cfg.MaxGoroutines {
		metrics.RequestsRejectedTotal.WithLabelValues("admission_goroutines").Inc()
		return false, fmt.Sprintf("goroutine limit exceeded (%d > %d)", current, g.cfg.MaxGoroutines)
	}

	return true, "OK"
}

// AcquireGoroutine attempts to reserve a goroutine slot for an ingest
// source (peer, production) about to spawn one. Returns false if the
// limit is already reached.
func (g *Guard) AcquireGoroutine() bool {
	select {
	case g.goroutines <- struct{}{}:
		return true
	default:
		return false
	}
}

// ReleaseGoroutine frees a slot acquired by AcquireGoroutine.
func (g *Guard) ReleaseGoroutine() {
	<-g.goroutines
}

// StartMonitoring samples CPU usage every interval until ctx is done,
// updating the admission threshold check and the exported gauges.
func (g *Guard) StartMonitoring(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				percent, err := g.cpuMonitor.Percent()
				if err != nil {
					logging.LogError(g.logger, err, "admission: failed to sample cpu", nil)
					continue
				}
				g.currentCPU.Store(percent)
				metrics.CPUContainerPercent.Set(percent)
				metrics.GoroutinesActive.Set(float64(runtime.NumGoroutine()))
			case <-ctx.Done():
				return
			}
		}
	}()
}
