package agent

import (
	"slices"

	"github.com/leofalp/llmkit/core/step"
)

// StopCondition inspects the steps so far and reports whether the run should
// end. It is evaluated after each step that asked for tools.
type StopCondition func(steps []*step.Result) bool

// StepCountIs stops once n steps have run.
func StepCountIs(n int) StopCondition {
	return func(steps []*step.Result) bool {
		return len(steps) >= n
	}
}

// HasToolCall stops when the last step called any of the named tools.
func HasToolCall(names ...string) StopCondition {
	return func(steps []*step.Result) bool {
		if len(steps) == 0 {
			return false
		}
		for _, call := range steps[len(steps)-1].ToolCalls() {
			if slices.Contains(names, call.ToolName) {
				return true
			}
		}
		return false
	}
}

func anyStop(conditions []StopCondition, steps []*step.Result) bool {
	for _, condition := range conditions {
		if condition(steps) {
			return true
		}
	}
	return false
}
