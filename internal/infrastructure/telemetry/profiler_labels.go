package telemetry

import (
	"context"
	"sort"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys.
const (
	ProfilingLabelController = "controller"
	ProfilingLabelRoute      = "route"
	ProfilingLabelMethod     = "method"
	ProfilingLabelOperation  = "operation"
	ProfilingLabelAction     = "action"
	ProfilingLabelCallerRole = "caller_role"
)

// MaxLabelValueLength caps label values.
const MaxLabelValueLength = 128

// HighCardinalityLabels are dropped from profiling labels. Tourist, user and
// work item ids would create one series per entity.
var HighCardinalityLabels = map[string]bool{
	"user_id":      true,
	"tourist_id":   true,
	"chain_id":     true,
	"work_item_id": true,
	"request_id":   true,
	"trace_id":     true,
	"span_id":      true,
}

// WithProfilingLabels runs fn with pprof labels attached so Pyroscope can
// slice profiles by them.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// HTTPRequestLabels builds labels for a matched route.
func HTTPRequestLabels(controller, route, method string) map[string]string {
	labels := make(map[string]string, 3)
	if controller != "" {
		labels[ProfilingLabelController] = controller
	}
	if route != "" {
		labels[ProfilingLabelRoute] = route
	}
	if method != "" {
		labels[ProfilingLabelMethod] = method
	}
	return labels
}

// WorkerLabels builds labels for a reconciliation step.
func WorkerLabels(operation, action string) map[string]string {
	labels := map[string]string{ProfilingLabelOperation: operation}
	if action != "" {
		labels[ProfilingLabelAction] = action
	}
	return labels
}

// sanitizeLabels returns key/value pairs sorted by key. Empty, malformed and
// high-cardinality entries are dropped and long values truncated.
func sanitizeLabels(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k, v := range labels {
		k = sanitizeLabelKey(k)
		if k == "" || v == "" || HighCardinalityLabels[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		v := labels[k]
		if len(v) > MaxLabelValueLength {
			v = v[:MaxLabelValueLength]
		}
		pairs = append(pairs, k, v)
	}
	return pairs
}

// sanitizeLabelKey returns key when it only uses [a-z0-9_], otherwise "".
func sanitizeLabelKey(key string) string {
	for _, r := range key {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return ""
		}
	}
	return key
}
