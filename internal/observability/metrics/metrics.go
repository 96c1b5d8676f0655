package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters for the conversational agent.
type ConversationMetrics struct {
	turnsTotal    *prometheus.CounterVec
	turnErrors    *prometheus.CounterVec
	sessionResets *prometheus.CounterVec
	turnLatency   *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversation turns handled, by intent and action taken",
		}, []string{"intent", "action"}),
		turnErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "turn_errors_total",
			Help:      "Conversation turns that failed and reset the session",
		}, []string{"state"}),
		sessionResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "session_resets_total",
			Help:      "Sessions returned to idle, by reason",
		}, []string{"reason"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of conversation turn handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnErrors, m.sessionResets, m.turnLatency)
	return m
}

func (m *ConversationMetrics) ObserveTurn(intent, action string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(intent, action).Inc()
}

func (m *ConversationMetrics) ObserveTurnError(state string) {
	if m == nil {
		return
	}
	m.turnErrors.WithLabelValues(state).Inc()
}

func (m *ConversationMetrics) ObserveSessionReset(reason string) {
	if m == nil {
		return
	}
	m.sessionResets.WithLabelValues(reason).Inc()
}

func (m *ConversationMetrics) ObserveTurnLatency(state string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(state).Observe(seconds)
}

// CacheMetrics counts availability and patient cache traffic.
type CacheMetrics struct {
	lookups       *prometheus.CounterVec
	invalidations prometheus.Counter
	errors        *prometheus.CounterVec
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by namespace and result (hit/miss)",
		}, []string{"namespace", "result"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "cache",
			Name:      "invalidated_keys_total",
			Help:      "Schedule cache keys deleted by invalidation",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Cache store errors that degraded to pass-through",
		}, []string{"op"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.lookups, m.invalidations, m.errors)
	return m
}

func (m *CacheMetrics) ObserveLookup(namespace string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(namespace, result).Inc()
}

func (m *CacheMetrics) ObserveInvalidation(deleted int) {
	if m == nil || deleted <= 0 {
		return
	}
	m.invalidations.Add(float64(deleted))
}

func (m *CacheMetrics) ObserveError(op string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(op).Inc()
}

// BookingMetrics counts booking and cancellation outcomes.
type BookingMetrics struct {
	outcomes *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "bookings",
			Name:      "outcomes_total",
			Help:      "Booking and cancellation attempts by operation and outcome",
		}, []string{"operation", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outcomes)
	return m
}

func (m *BookingMetrics) ObserveOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(operation, outcome).Inc()
}
