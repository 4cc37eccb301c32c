package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder counts engine operations on its own registry, so several engines
// (one per test, say) never collide on registration.
type Recorder struct {
	Registry *prometheus.Registry

	operations    *prometheus.CounterVec
	remindersSent prometheus.Counter
}

func NewRecorder() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_engine_operations_total",
				Help: "Count of circulation engine operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_reminders_sent_total",
			Help: "Count of due-date reminders delivered",
		}),
	}
	r.Registry.MustRegister(r.operations, r.remindersSent)
	return r
}

// Operation records one finished operation. A nil Recorder is a no-op.
func (r *Recorder) Operation(op, outcome string) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(op, outcome).Inc()
}

func (r *Recorder) ReminderSent() {
	if r == nil {
		return
	}
	r.remindersSent.Inc()
}

func (r *Recorder) OperationCount(op, outcome string) prometheus.Counter {
	return r.operations.WithLabelValues(op, outcome)
}

func (r *Recorder) RemindersCounter() prometheus.Counter {
	return r.remindersSent
}
