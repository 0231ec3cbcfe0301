package ai

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePrompt() Prompt {
	return Prompt{
		SystemMessage("You are terse."),
		{
			Role: RoleUser,
			Parts: []Part{
				TextPart{Text: "weather in SF"},
				ImagePart{MediaType: "image/png", Data: FileBytes([]byte{0x89, 0x50, 0x4e, 0x47})},
				FilePart{MediaType: "application/pdf", Data: FileBase64("JVBERi0="), Filename: "a.pdf"},
			},
			ProviderOptions: ProviderOptions{"openai": json.RawMessage(`{"user":"u1"}`)},
		},
		AssistantMessage(
			ReasoningPart{Text: "need weather", Signature: "sig"},
			ToolCallPart{ToolCallID: "c1", ToolName: "get_weather", Input: json.RawMessage(`{"city":"SF"}`)},
			ApprovalRequestPart{ApprovalID: "c1", ToolCallID: "c1"},
		),
		ToolMessage(
			ApprovalResponsePart{ApprovalID: "c1", Approved: true, Reason: "ok"},
			ToolResultPart{ToolCallID: "c1", ToolName: "get_weather", Output: JSONOutput(map[string]int{"temp": 72})},
		),
		AssistantMessage(TextPart{Text: "It is 72°"}),
	}
}

// Serializing a prompt and decoding it yields the same concrete parts.
func TestPrompt_JSONRoundTrip_PreservesParts(t *testing.T) {
	prompt := samplePrompt()

	data, err := json.Marshal(prompt)
	require.NoError(t, err)

	decoded, err := ParsePrompt(data)
	require.NoError(t, err)
	assert.Equal(t, prompt, decoded)
}

// Tool results serialize to the documented wire shape.
func TestToolResultPart_MarshalJSON_WireShape(t *testing.T) {
	part := ToolResultPart{ToolCallID: "c1", ToolName: "get_weather", Output: TextOutput("sunny")}

	data, err := json.Marshal(part)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool-result","tool_call_id":"c1","tool_name":"get_weather","output":{"kind":"text","value":"sunny"}}`, string(data))
}

// An invalid call keeps its raw model text through a JSON round trip.
func TestToolCallPart_JSONRoundTrip_InvalidInput(t *testing.T) {
	part := ToolCallPart{ToolCallID: "c1", ToolName: "get_weather", Input: json.RawMessage(`{"city":`), Invalid: true, Error: "truncated"}

	data, err := json.Marshal(part)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool-call","tool_call_id":"c1","tool_name":"get_weather","input":null,"input_text":"{\"city\":","invalid":true,"error":"truncated"}`, string(data))

	decoded, err := UnmarshalPart(data)
	require.NoError(t, err)
	assert.Equal(t, part, decoded)

	// a schema-invalid call whose input is valid JSON is kept as is
	stringInput := ToolCallPart{ToolCallID: "c2", ToolName: "get_weather", Input: json.RawMessage(`"SF"`), Invalid: true}
	data, err = json.Marshal(stringInput)
	require.NoError(t, err)
	decoded, err = UnmarshalPart(data)
	require.NoError(t, err)
	assert.Equal(t, stringInput, decoded)
}

func TestPrompt_Validate(t *testing.T) {
	tests := []struct {
		name    string
		prompt  Prompt
		wantErr bool
	}{
		{name: "valid", prompt: samplePrompt()},
		{name: "empty", prompt: Prompt{}, wantErr: true},
		{name: "orphan tool result", prompt: Prompt{
			UserText("hi"),
			ToolMessage(ToolResultPart{ToolCallID: "missing", ToolName: "x", Output: TextOutput("y")}),
		}, wantErr: true},
		{name: "image with wrong media type", prompt: Prompt{
			UserMessage(ImagePart{MediaType: "application/pdf", Data: FileBase64("AA==")}),
		}, wantErr: true},
		{name: "tool call in user message", prompt: Prompt{
			UserMessage(ToolCallPart{ToolCallID: "c", ToolName: "t"}),
		}, wantErr: true},
		{name: "unknown role", prompt: Prompt{{Role: "robot", Parts: []Part{Text("x")}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prompt.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPrompt))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUnmarshalPart_UnknownType(t *testing.T) {
	_, err := UnmarshalPart([]byte(`{"type":"hologram"}`))
	require.Error(t, err)
	assert.Equal(t, KindInvalidPrompt, KindOf(err))
}

func TestPrompt_Clone_DoesNotAlias(t *testing.T) {
	prompt := Prompt{UserText("a")}
	clone := prompt.Clone()
	clone[0].Parts = append(clone[0].Parts, Text("b"))

	assert.Len(t, prompt[0].Parts, 1)
	assert.Len(t, clone[0].Parts, 2)
}

func TestToolOutput_Helpers(t *testing.T) {
	assert.Equal(t, "hello", TextOutput("hello").Text())
	assert.False(t, TextOutput("hello").IsError())

	errOut := OutputFromError(NewError(KindInvalidToolInput, "missing property b"))
	assert.True(t, errOut.IsError())
	payload, ok := errOut.ErrorPayload()
	require.True(t, ok)
	assert.Equal(t, KindInvalidToolInput, payload.Code)
	assert.Equal(t, "missing property b", payload.Message)

	plain := OutputFromError(errors.New("boom"))
	assert.Equal(t, OutputErrorText, plain.Kind)
	assert.Equal(t, "boom", plain.Text())
}
