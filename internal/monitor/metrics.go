package monitor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/turtacn/wmswitch/pkg/logger"
)

var (
	// ArbitrationDuration tracks how long one pass of the rule chain takes, probes included.
	ArbitrationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wmswitch_arbitration_duration_seconds",
		Help:    "Time taken by one arbitration pass",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	// SpawnTotal counts launch attempts, partitioned by candidate role.
	SpawnTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wmswitch_spawns_total",
		Help: "Total number of window manager launches",
	}, []string{"candidate"})
	// ExitTotal counts observed process exits, partitioned by candidate and reason.
	ExitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wmswitch_exits_total",
		Help: "Total number of window manager exits",
	}, []string{"candidate", "reason"})
	// ToggleTotal counts toggle requests by outcome.
	ToggleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wmswitch_toggles_total",
		Help: "Total number of toggle requests",
	}, []string{"result"})
	// FailoverTotal counts switches the supervisor made on its own.
	FailoverTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wmswitch_failovers_total",
		Help: "Total number of automatic candidate changes",
	}, []string{"reason"})
	// Running is 1 for the candidate currently owned, 0 otherwise.
	Running = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wmswitch_running",
		Help: "Candidate currently supervised",
	}, []string{"candidate"})
	// NotificationTotal counts delivered user notifications by kind.
	NotificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wmswitch_notifications_total",
		Help: "Total number of notifications sent",
	}, []string{"kind"})
)

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ArbitrationDuration, SpawnTotal, ExitTotal, ToggleTotal,
			FailoverTotal, Running, NotificationTotal)
	})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Log.Info("Metrics server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Error("Metrics server failed", "err", err)
		return err
	}
	return nil
}

// Personal.AI order the ending
