package framework

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BatchSource supplies the next batch of data and its validation context
// for a monitoring cycle
type BatchSource func(ctx context.Context) (interface{}, *ValidationContext, error)

// ReportSink receives the report produced by each monitoring cycle
type ReportSink func(report interface{})

// ContinuousMonitor runs the framework on a fixed interval against a batch
// source. A failing or panicking cycle is logged and the loop keeps going.
type ContinuousMonitor struct {
	framework *DataQualityFramework
	logger    *zap.Logger
	interval  time.Duration
	source    BatchSource
	scopes    []Scope

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     sync.WaitGroup
}

// NewContinuousMonitor creates a monitor over the given framework
func NewContinuousMonitor(f *DataQualityFramework, interval time.Duration, source BatchSource, scopes []Scope) *ContinuousMonitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ContinuousMonitor{
		framework: f,
		logger:    f.logger,
		interval:  interval,
		source:    source,
		scopes:    scopes,
	}
}

// Start launches the monitoring loop. Starting an already running monitor
// is an error.
func (m *ContinuousMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("monitor is already running")
	}
	m.running = true
	m.stopChan = make(chan struct{})

	m.done.Add(1)
	go m.run(ctx, m.stopChan)

	m.logger.Info("Started continuous monitoring", zap.Duration("interval", m.interval))
	return nil
}

// Stop signals the loop to exit and waits for the in-flight cycle
func (m *ContinuousMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.done.Wait()
	m.logger.Info("Stopped continuous monitoring")
}

// Running reports whether the loop is active
func (m *ContinuousMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *ContinuousMonitor) run(ctx context.Context, stop <-chan struct{}) {
	defer m.done.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

func (m *ContinuousMonitor) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Monitoring cycle panicked", zap.Any("panic", r))
		}
	}()

	data, vc, err := m.source(ctx)
	if err != nil {
		m.logger.Error("Failed to fetch monitoring batch", zap.Error(err))
		return
	}

	report := m.framework.ValidateDataQuality(ctx, data, vc, m.scopes)

	if m.framework.collector != nil {
		m.framework.collector.MonitoringCycles.Inc()
	}

	if report.OverallScore < 70 {
		m.logger.Warn("Monitoring cycle found degraded quality",
			zap.String("report_id", report.ID),
			zap.Float64("score", report.OverallScore),
			zap.Strings("recommendations", report.Recommendations))
		return
	}

	m.logger.Info("Monitoring cycle completed",
		zap.String("report_id", report.ID),
		zap.Float64("score", report.OverallScore))
}
