// Package agent implements the multi-step loop on top of [step]: call the
// model, execute the requested tools, append their results to the prompt and
// call the model again until a stop condition holds.
//
// A run pauses when a tool requires approval. The caller answers each
// pending request with an [ai.ApprovalResponsePart] in a tool message and
// runs again; approved calls execute before the next model call:
//
//	result, err := a.Run(ctx, prompt)
//	if err == nil && result.Paused {
//	    answers := askUser(result.PendingApprovals)
//	    result, err = a.Run(ctx, append(result.Prompt, ai.Message{Role: ai.RoleTool, Parts: answers}))
//	}
//
// [Agent.Stream] yields the same run as a sequence of events, including
// partial text, tool input deltas and per-step boundaries.
package agent
