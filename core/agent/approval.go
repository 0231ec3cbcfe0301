package agent

import (
	"github.com/leofalp/llmkit/providers/ai"
)

// Approval pairs an approval request with the host's response and the tool
// call it refers to.
type Approval struct {
	Request  ai.ApprovalRequestPart
	Response ai.ApprovalResponsePart
	Call     ai.ToolCallPart
}

// CollectApprovals reads the approval responses in the last message of
// prompt, when it is a tool message, and matches them to the requests and
// tool calls of earlier assistant messages. Calls that already have a
// result are skipped, as are responses without a matching request.
func CollectApprovals(prompt ai.Prompt) (approved, denied []Approval) {
	if len(prompt) == 0 || prompt[len(prompt)-1].Role != ai.RoleTool {
		return nil, nil
	}

	requests := map[string]ai.ApprovalRequestPart{}
	calls := map[string]ai.ToolCallPart{}
	answered := map[string]bool{}
	for _, message := range prompt {
		for _, part := range message.Parts {
			switch p := part.(type) {
			case ai.ApprovalRequestPart:
				requests[p.ApprovalID] = p
			case ai.ToolCallPart:
				calls[p.ToolCallID] = p
			case ai.ToolResultPart:
				answered[p.ToolCallID] = true
			}
		}
	}

	for _, part := range prompt[len(prompt)-1].Parts {
		response, ok := part.(ai.ApprovalResponsePart)
		if !ok {
			continue
		}
		request, ok := requests[response.ApprovalID]
		if !ok {
			continue
		}
		call, ok := calls[request.ToolCallID]
		if !ok || answered[call.ToolCallID] {
			continue
		}
		approval := Approval{Request: request, Response: response, Call: call}
		if response.Approved {
			approved = append(approved, approval)
		} else {
			denied = append(denied, approval)
		}
	}
	return approved, denied
}

// findApprovalResponse looks for a response to the approval request that
// would be raised for toolCallID.
func findApprovalResponse(prompt ai.Prompt, toolCallID string) (ai.ApprovalResponsePart, bool) {
	for i := len(prompt) - 1; i >= 0; i-- {
		for _, part := range prompt[i].Parts {
			if response, ok := part.(ai.ApprovalResponsePart); ok && response.ApprovalID == approvalID(toolCallID) {
				return response, true
			}
		}
	}
	return ai.ApprovalResponsePart{}, false
}

// approvalID derives the approval id from the tool call id, so hosts can
// answer a request knowing only the call.
func approvalID(toolCallID string) string {
	return toolCallID
}

func deniedResult(call ai.ToolCallPart, reason string) ai.ToolResultPart {
	if reason == "" {
		reason = "tool execution was denied"
	}
	return ai.ToolResultPart{
		ToolCallID: call.ToolCallID,
		ToolName:   call.ToolName,
		Output:     ai.ErrorJSONOutput(ai.KindExecutionDenied, reason, nil),
	}
}
