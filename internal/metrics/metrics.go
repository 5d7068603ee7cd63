// Package metrics exposes Prometheus counters for model calls, tool calls
// and token consumption, fed by an event bus subscriber so the engine never
// depends on the metrics registry directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// Collector owns the counter families and implements the bus subscriber.
type Collector struct {
	modelCalls   *prometheus.CounterVec
	modelErrors  prometheus.Counter
	toolCalls    *prometheus.CounterVec
	tokensIn     prometheus.Counter
	tokensOut    prometheus.Counter
	terminations *prometheus.CounterVec
	workflowRuns *prometheus.CounterVec
}

// NewCollector builds the counters and registers them. A nil registerer
// falls back to the default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nifimcp",
			Name:      "model_calls_total",
			Help:      "Model completion calls, by provider and model.",
		}, []string{"provider", "model"}),
		modelErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nifimcp",
			Name:      "model_errors_total",
			Help:      "Model completion calls that ended in an error.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nifimcp",
			Name:      "tool_calls_total",
			Help:      "Tool executions, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		tokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nifimcp",
			Name:      "tokens_in_total",
			Help:      "Prompt tokens reported by providers.",
		}),
		tokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nifimcp",
			Name:      "tokens_out_total",
			Help:      "Completion tokens reported by providers.",
		}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nifimcp",
			Name:      "loop_terminations_total",
			Help:      "Agent loop terminations, by reason.",
		}, []string{"reason"}),
		workflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nifimcp",
			Name:      "workflow_runs_total",
			Help:      "Workflow runs, by workflow name and outcome.",
		}, []string{"workflow", "outcome"}),
	}

	reg.MustRegister(
		c.modelCalls,
		c.modelErrors,
		c.toolCalls,
		c.tokensIn,
		c.tokensOut,
		c.terminations,
		c.workflowRuns,
	)
	return c
}

// HandleEvent implements the bus subscriber, translating progress events
// into counter increments.
func (c *Collector) HandleEvent(event models.Event) {
	switch event.Type {
	case models.EventLLMComplete:
		c.modelCalls.WithLabelValues(
			stringField(event.Data, "provider"),
			stringField(event.Data, "model"),
		).Inc()
		c.tokensIn.Add(floatField(event.Data, "tokens_in"))
		c.tokensOut.Add(floatField(event.Data, "tokens_out"))

	case models.EventLLMError:
		c.modelErrors.Inc()

	case models.EventToolComplete:
		c.toolCalls.WithLabelValues(stringField(event.Data, "tool"), "ok").Inc()

	case models.EventToolError:
		c.toolCalls.WithLabelValues(stringField(event.Data, "tool"), "error").Inc()

	case models.EventWorkflowComplete:
		c.workflowRuns.WithLabelValues(stringField(event.Data, "workflow"), "ok").Inc()
		if reason := stringField(event.Data, "termination_reason"); reason != "" {
			c.terminations.WithLabelValues(reason).Inc()
		}

	case models.EventWorkflowError:
		c.workflowRuns.WithLabelValues(stringField(event.Data, "workflow"), "error").Inc()
	}
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return s
}

func floatField(data map[string]any, key string) float64 {
	if data == nil {
		return 0
	}
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
