// Package calculator provides an in-process arithmetic tool. It is the
// smallest useful tool for exercising the agent loop end to end.
//
// [New] returns a [tool.Descriptor] ready for [tool.NewRegistry]; [Calc] is
// the underlying function.
package calculator
