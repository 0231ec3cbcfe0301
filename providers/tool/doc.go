// Package tool defines tool descriptors, the immutable [Registry] the agent
// loop consults, and [Execute], which runs a call and shapes its outcome
// into an [ai.ToolResultPart].
//
// Descriptors can be written by hand, with a JSON schema and an [Executor]
// built by [Single] or [Streaming], or derived from typed functions with
// [NewTool] and [NewStreamingTool]:
//
//	add := tool.MustTool("add", func(ctx context.Context, in AddInput) (int, error) {
//	    return in.A + in.B, nil
//	}, tool.WithDescription("Adds two integers."))
//
//	registry, err := tool.NewRegistry(add, calculator.New())
//
// Approval policies ([Never], [Always], [Predicate]) are evaluated by the
// agent loop through [IsApprovalNeeded] before a call runs.
package tool
