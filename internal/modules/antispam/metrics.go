package antispam

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messagesEvaluated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "spamguard_messages_evaluated",
	Help: "Number of messages run through the detection rules",
})

var rulesTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spamguard_rules_triggered",
	Help: "Number of messages flagged, by rule",
}, []string{"rule"})

var actionsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spamguard_actions_decided",
	Help: "Number of moderation actions decided, by kind",
}, []string{"action"})

var evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "spamguard_evaluation_duration_sec",
	Help:    "Time spent evaluating one message",
	Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
})
