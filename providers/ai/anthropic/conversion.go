package anthropic

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/leofalp/llmkit/internal/utils"
	"github.com/leofalp/llmkit/providers/ai"
)

// jsonToolName is the synthetic tool used to obtain JSON responses.
const jsonToolName = "json"

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// callPlan carries per-call decisions from request building to response
// parsing.
type callPlan struct {
	warnings []ai.Warning
	betas    []string
	jsonTool bool
}

func (a *Adapter) buildRequest(options ai.CallOptions, streaming bool) (*messagesRequest, *callPlan, error) {
	if err := options.Validate(); err != nil {
		return nil, nil, err
	}

	var providerOptions ProviderOptions
	if _, err := options.ProviderOption(ProviderName, &providerOptions); err != nil {
		return nil, nil, err
	}

	system, messages, warnings, err := convertPrompt(options.Prompt, utils.Deref(providerOptions.SendReasoning, true))
	if err != nil {
		return nil, nil, err
	}
	plan := &callPlan{warnings: warnings}

	if providerOptions.CacheControl != nil && len(system) > 0 {
		system[len(system)-1].CacheControl = providerOptions.CacheControl
	}

	request := &messagesRequest{
		Model:         a.modelID,
		Messages:      messages,
		System:        system,
		Temperature:   options.Temperature,
		TopP:          options.TopP,
		TopK:          options.TopK,
		StopSequences: options.StopSequences,
	}
	if providerOptions.UserID != "" {
		request.Metadata = &requestMeta{UserID: providerOptions.UserID}
	}

	if options.PresencePenalty != nil {
		plan.warnings = append(plan.warnings, ai.UnsupportedSetting("presencePenalty", ""))
	}
	if options.FrequencyPenalty != nil {
		plan.warnings = append(plan.warnings, ai.UnsupportedSetting("frequencyPenalty", ""))
	}
	if options.Seed != nil {
		plan.warnings = append(plan.warnings, ai.UnsupportedSetting("seed", ""))
	}

	limit, knownModel := modelLimit(a.modelID)
	maxTokens := utils.Deref(options.MaxOutputTokens, limit)

	if thinking := providerOptions.Thinking; thinking != nil && thinking.Type == "enabled" {
		if thinking.BudgetTokens <= 0 {
			return nil, nil, ai.NewError(ai.KindInvalidArgument, "extended thinking requires a positive budget")
		}
		request.Thinking = &thinkingSpec{Type: "enabled", BudgetTokens: thinking.BudgetTokens}

		if request.Temperature != nil {
			request.Temperature = nil
			plan.warnings = append(plan.warnings, ai.UnsupportedSetting("temperature", "temperature is not supported when thinking is enabled"))
		}
		if request.TopK != nil {
			request.TopK = nil
			plan.warnings = append(plan.warnings, ai.UnsupportedSetting("topK", "topK is not supported when thinking is enabled"))
		}
		if request.TopP != nil {
			request.TopP = nil
			plan.warnings = append(plan.warnings, ai.UnsupportedSetting("topP", "topP is not supported when thinking is enabled"))
		}
		maxTokens += thinking.BudgetTokens
	}

	if knownModel && maxTokens > limit {
		if options.MaxOutputTokens != nil {
			plan.warnings = append(plan.warnings, ai.UnsupportedSetting("maxOutputTokens",
				"max output tokens plus thinking budget exceed the model limit and were capped"))
		}
		maxTokens = limit
	}
	request.MaxTokens = maxTokens

	tools, choice := options.Tools, options.ToolChoice
	if format := options.ResponseFormat; format.IsJSON() {
		if len(format.Schema) > 0 {
			if len(tools) > 0 {
				plan.warnings = append(plan.warnings, ai.UnsupportedSetting("tools", "tools are replaced by the json response tool"))
			}
			plan.jsonTool = true
			description := format.Description
			if description == "" {
				description = "Respond with a JSON object."
			}
			tools = []ai.ToolDefinition{{Name: jsonToolName, Description: description, InputSchema: format.Schema}}
			choice = ai.SpecificTool(jsonToolName)
		} else {
			plan.warnings = append(plan.warnings, ai.UnsupportedSetting("responseFormat", "JSON response format requires a schema"))
		}
	}

	// Anthropic has no "none" tool choice; tools are omitted instead.
	if len(tools) > 0 && (choice == nil || choice.Type != ai.ToolChoiceNone) {
		request.Tools = convertTools(tools, providerOptions.CacheControl)
		request.ToolChoice = toolChoice(choice, providerOptions.DisableParallelToolUse)
	}

	if streaming && utils.Deref(providerOptions.ToolStreaming, true) {
		plan.betas = append(plan.betas, BetaFineGrainedToolStreaming)
	}
	return request, plan, nil
}

// convertTools attaches cacheControl, when set, to the last tool so the whole
// list is cached together.
func convertTools(tools []ai.ToolDefinition, cacheControl *CacheControl) []toolSpec {
	specs := make([]toolSpec, 0, len(tools))
	for _, definition := range tools {
		schema := definition.InputSchema
		if len(schema) == 0 {
			schema = emptyObjectSchema
		}
		specs = append(specs, toolSpec{
			Name:        definition.Name,
			Description: definition.Description,
			InputSchema: schema,
		})
	}
	if cacheControl != nil && len(specs) > 0 {
		specs[len(specs)-1].CacheControl = cacheControl
	}
	return specs
}

func toolChoice(choice *ai.ToolChoice, disableParallel bool) *toolChoiceSpec {
	var spec *toolChoiceSpec
	switch {
	case choice == nil, choice.Type == ai.ToolChoiceAuto:
		if !disableParallel {
			return nil
		}
		spec = &toolChoiceSpec{Type: "auto"}
	case choice.Type == ai.ToolChoiceRequired:
		spec = &toolChoiceSpec{Type: "any"}
	case choice.Type == ai.ToolChoiceTool:
		spec = &toolChoiceSpec{Type: "tool", Name: choice.ToolName}
	default:
		return nil
	}
	spec.DisableParallelToolUse = disableParallel
	return spec
}

// convertPrompt splits system text from the conversation and maps the rest
// to Anthropic messages. Consecutive messages with the same wire role are
// merged because the API requires alternating turns; tool results therefore
// share one user message.
func convertPrompt(prompt ai.Prompt, sendReasoning bool) ([]contentBlock, []message, []ai.Warning, error) {
	var (
		system   []contentBlock
		messages []message
		warnings []ai.Warning
	)

	appendBlocks := func(role string, blocks []contentBlock) {
		if len(blocks) == 0 {
			return
		}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			return
		}
		messages = append(messages, message{Role: role, Content: blocks})
	}

	for _, msg := range prompt {
		switch msg.Role {
		case ai.RoleSystem:
			system = append(system, contentBlock{Type: "text", Text: msg.Text()})

		case ai.RoleUser:
			var blocks []contentBlock
			for _, part := range msg.Parts {
				block, err := userBlock(part)
				if err != nil {
					return nil, nil, nil, err
				}
				blocks = append(blocks, block)
			}
			appendBlocks("user", blocks)

		case ai.RoleAssistant:
			var blocks []contentBlock
			for _, part := range msg.Parts {
				switch p := part.(type) {
				case ai.ReasoningPart:
					switch {
					case !sendReasoning:
						warnings = append(warnings, ai.Warning{Type: ai.WarningOther, Message: "reasoning is not sent when sendReasoning is disabled"})
					case p.Signature == "":
						warnings = append(warnings, ai.Warning{Type: ai.WarningOther, Message: "reasoning without a signature cannot be replayed"})
					default:
						blocks = append(blocks, contentBlock{Type: "thinking", Thinking: p.Text, Signature: p.Signature})
					}
				case ai.TextPart:
					if p.Text != "" {
						blocks = append(blocks, contentBlock{Type: "text", Text: p.Text})
					}
				case ai.ToolCallPart:
					if p.ProviderExecuted {
						continue
					}
					input := p.Input
					if !json.Valid(input) {
						input = json.RawMessage(`{}`)
					}
					blocks = append(blocks, contentBlock{Type: "tool_use", ID: p.ToolCallID, Name: p.ToolName, Input: input})
				}
			}
			appendBlocks("assistant", blocks)

		case ai.RoleTool:
			var blocks []contentBlock
			for _, part := range msg.Parts {
				result, ok := part.(ai.ToolResultPart)
				if !ok {
					continue
				}
				blocks = append(blocks, contentBlock{
					Type:      "tool_result",
					ToolUseID: result.ToolCallID,
					Content:   toolResultContent(result.Output),
					IsError:   result.Output.IsError(),
				})
			}
			appendBlocks("user", blocks)
		}
	}

	return system, messages, warnings, nil
}

func userBlock(part ai.Part) (contentBlock, error) {
	switch p := part.(type) {
	case ai.TextPart:
		return contentBlock{Type: "text", Text: p.Text}, nil
	case ai.ImagePart:
		return contentBlock{Type: "image", Source: fileSource(p.MediaType, p.Data)}, nil
	case ai.FilePart:
		return fileBlock(p)
	default:
		return contentBlock{}, ai.NewError(ai.KindInvalidPrompt, "unsupported user part %s", part.PartType())
	}
}

func fileBlock(p ai.FilePart) (contentBlock, error) {
	switch {
	case strings.HasPrefix(p.MediaType, "image/"):
		return contentBlock{Type: "image", Source: fileSource(p.MediaType, p.Data)}, nil

	case p.MediaType == "application/pdf":
		return contentBlock{Type: "document", Source: fileSource(p.MediaType, p.Data), Title: p.Filename}, nil

	case p.MediaType == "text/plain":
		text := string(p.Data.Bytes)
		if p.Data.Base64 != "" {
			decoded, err := base64.StdEncoding.DecodeString(p.Data.Base64)
			if err != nil {
				return contentBlock{}, ai.WrapError(ai.KindInvalidPrompt, err, "decode text file %q", p.Filename)
			}
			text = string(decoded)
		}
		if p.Data.URL != "" {
			return contentBlock{Type: "document", Source: &source{Type: "url", URL: p.Data.URL}, Title: p.Filename}, nil
		}
		return contentBlock{
			Type:   "document",
			Source: &source{Type: "text", MediaType: "text/plain", Data: text},
			Title:  p.Filename,
		}, nil

	default:
		return contentBlock{}, ai.NewError(ai.KindInvalidPrompt, "unsupported file media type %q", p.MediaType)
	}
}

func fileSource(mediaType string, data ai.FileData) *source {
	if data.URL != "" {
		return &source{Type: "url", URL: data.URL}
	}
	encoded := data.Base64
	if encoded == "" {
		encoded = base64.StdEncoding.EncodeToString(data.Bytes)
	}
	return &source{Type: "base64", MediaType: mediaType, Data: encoded}
}

// toolResultContent renders a tool output natively: text kinds as strings,
// JSON kinds as their encoded value, media as content blocks.
func toolResultContent(output ai.ToolOutput) any {
	switch output.Kind {
	case ai.OutputText, ai.OutputErrorText:
		return output.Text()
	case ai.OutputMedia:
		var items []ai.MediaItem
		if err := json.Unmarshal(output.Value, &items); err != nil {
			return string(output.Value)
		}
		blocks := make([]contentBlock, 0, len(items))
		for _, item := range items {
			if item.Type == "media" && strings.HasPrefix(item.MediaType, "image/") {
				blocks = append(blocks, contentBlock{
					Type:   "image",
					Source: &source{Type: "base64", MediaType: item.MediaType, Data: item.Data},
				})
				continue
			}
			blocks = append(blocks, contentBlock{Type: "text", Text: item.Text})
		}
		return blocks
	default:
		return string(output.Value)
	}
}

// convertResponse maps content blocks in order. The json tool input, when
// the call used it, is surfaced as text.
func convertResponse(response *messagesResponse, jsonTool bool) *ai.GenerateResponse {
	var content []ai.Part
	for _, block := range response.Content {
		switch block.Type {
		case "text":
			content = append(content, ai.TextPart{Text: block.Text})
		case "thinking":
			content = append(content, ai.ReasoningPart{Text: block.Thinking, Signature: block.Signature})
		case "tool_use":
			input := block.Input
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			if jsonTool && block.Name == jsonToolName {
				content = append(content, ai.TextPart{Text: string(input)})
				continue
			}
			content = append(content, ai.ToolCallPart{ToolCallID: block.ID, ToolName: block.Name, Input: input})
		}
	}

	return &ai.GenerateResponse{
		Content:          content,
		FinishReason:     mapStopReason(response.StopReason, jsonTool),
		Usage:            mapUsage(response.Usage),
		ProviderMetadata: usageMetadata(response.Usage),
		Response: ai.ResponseMetadata{
			ID:      response.ID,
			ModelID: response.Model,
		},
	}
}

func mapStopReason(raw string, jsonTool bool) ai.FinishReason {
	switch raw {
	case "end_turn", "stop_sequence", "pause_turn":
		return ai.FinishStop.WithRaw(raw)
	case "refusal":
		return ai.FinishContentFilter.WithRaw(raw)
	case "tool_use":
		if jsonTool {
			return ai.FinishStop.WithRaw(raw)
		}
		return ai.FinishToolCalls.WithRaw(raw)
	case "max_tokens":
		return ai.FinishLength.WithRaw(raw)
	default:
		return ai.FinishUnknown.WithRaw(raw)
	}
}

// mapUsage reports cache reads as cached input; cache writes are only
// exposed through provider metadata.
func mapUsage(u usage) ai.Usage {
	return ai.Usage{
		InputTokens:       u.InputTokens,
		OutputTokens:      u.OutputTokens,
		TotalTokens:       u.InputTokens + u.OutputTokens,
		CachedInputTokens: utils.Deref(u.CacheReadInputTokens, 0),
	}
}

func usageMetadata(u usage) ai.ProviderMetadata {
	if u.CacheCreationInputTokens == nil {
		return nil
	}
	return ai.ProviderMetadata{ProviderName: {"cacheCreationInputTokens": *u.CacheCreationInputTokens}}
}
