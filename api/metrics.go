package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type dashboardRequestMetrics struct {
	logger          *log.Logger
	route           string
	start           time.Time
	computeDuration time.Duration
	encodeDuration  time.Duration
	degraded        int
	fallback        bool
	errorStage      string
}

func newDashboardRequestMetrics(logger *log.Logger, route string) *dashboardRequestMetrics {
	return &dashboardRequestMetrics{logger: logger, route: route, start: time.Now()}
}

func (m *dashboardRequestMetrics) ObserveCompute(d time.Duration) {
	if d > 0 {
		m.computeDuration = d
	}
}

func (m *dashboardRequestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *dashboardRequestMetrics) SetDegraded(fields []string, fallback bool) {
	m.degraded = len(fields)
	m.fallback = fallback
}

func (m *dashboardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *dashboardRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":           m.route,
		"status":          status,
		"total_ms":        durationToMillis(time.Since(m.start)),
		"degraded_fields": m.degraded,
		"fallback":        m.fallback,
	}
	if m.computeDuration > 0 {
		fields["compute_ms"] = durationToMillis(m.computeDuration)
	}
	if m.encodeDuration > 0 {
		fields["encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("dashboard.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
