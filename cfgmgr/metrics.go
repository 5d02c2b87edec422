package cfgmgr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yodamaster/bundy/metric"
)

// coordinatorMetrics holds Prometheus metrics for coordinator operations.
type coordinatorMetrics struct {
	// Command dispatch
	commands        *prometheus.CounterVec   // By command and status (ok/error)
	commandDuration *prometheus.HistogramVec // By command

	// Commit engine
	commits   *prometheus.CounterVec // By module and verdict (accepted/rejected)
	rollbacks prometheus.Counter     // Snapshot restores, targeted and global

	// State
	registeredModules prometheus.Gauge // Currently registered modules
}

// newCoordinatorMetrics creates and registers coordinator metrics with the
// provided registry. A nil registry disables metrics.
func newCoordinatorMetrics(registry *metric.Registry) (*coordinatorMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &coordinatorMetrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bundy",
			Subsystem: "cfgmgr",
			Name:      "commands_total",
			Help:      "Total number of commands dispatched",
		}, []string{"command", "status"}),

		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bundy",
			Subsystem: "cfgmgr",
			Name:      "command_duration_seconds",
			Help:      "Command handling duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 15.0},
		}, []string{"command"}),

		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bundy",
			Subsystem: "cfgmgr",
			Name:      "commits_total",
			Help:      "Total number of per-module commit attempts",
		}, []string{"module", "verdict"}),

		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bundy",
			Subsystem: "cfgmgr",
			Name:      "rollbacks_total",
			Help:      "Total number of configuration snapshot restores",
		}),

		registeredModules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bundy",
			Subsystem: "cfgmgr",
			Name:      "registered_modules",
			Help:      "Current number of registered modules",
		}),
	}

	if err := registry.Register("cfgmgr", "commands", m.commands); err != nil {
		return nil, err
	}
	if err := registry.Register("cfgmgr", "command_duration", m.commandDuration); err != nil {
		return nil, err
	}
	if err := registry.Register("cfgmgr", "commits", m.commits); err != nil {
		return nil, err
	}
	if err := registry.Register("cfgmgr", "rollbacks", m.rollbacks); err != nil {
		return nil, err
	}
	if err := registry.Register("cfgmgr", "registered_modules", m.registeredModules); err != nil {
		return nil, err
	}

	return m, nil
}

// observeCommand records one dispatched command.
func (m *coordinatorMetrics) observeCommand(command, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, status).Inc()
	m.commandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// recordCommit records one per-module commit attempt.
func (m *coordinatorMetrics) recordCommit(module, verdict string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(module, verdict).Inc()
}

// recordRollback records one snapshot restore.
func (m *coordinatorMetrics) recordRollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}

// setRegisteredModules syncs the registered module gauge.
func (m *coordinatorMetrics) setRegisteredModules(count float64) {
	if m != nil {
		m.registeredModules.Set(count)
	}
}
