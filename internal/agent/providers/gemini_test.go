package providers

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/stackoverflowed/nifimcp/internal/agent"
	"github.com/stackoverflowed/nifimcp/pkg/models"
)

func geminiForTest() *GeminiProvider {
	return &GeminiProvider{
		base:   NewBaseProvider("gemini", 0, 0, nil),
		models: []string{"gemini-2.5-flash"},
	}
}

func TestGeminiConvertMessagesRoles(t *testing.T) {
	p := geminiForTest()
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "list the processors"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "call_list_nifi_objects_1", Name: "list_nifi_objects", Input: json.RawMessage(`{"object_type":"processors"}`)},
		}},
		{Role: models.RoleTool, ToolCallID: "call_list_nifi_objects_1", Content: `{"processors": []}`},
	}

	contents := p.convertMessages(messages)
	if len(contents) != 3 {
		t.Fatalf("convertMessages() = %d contents, want 3 (system skipped)", len(contents))
	}
	if contents[0].Role != genai.RoleUser {
		t.Fatalf("first role = %q", contents[0].Role)
	}
	if contents[1].Role != genai.RoleModel || contents[1].Parts[0].FunctionCall == nil {
		t.Fatalf("assistant content = %+v", contents[1])
	}
	if contents[1].Parts[0].FunctionCall.Args["object_type"] != "processors" {
		t.Fatalf("function call args = %v", contents[1].Parts[0].FunctionCall.Args)
	}

	fr := contents[2].Parts[0].FunctionResponse
	if fr == nil || fr.Name != "list_nifi_objects" {
		t.Fatalf("function response = %+v", fr)
	}
}

func TestWrapFunctionResponseShapes(t *testing.T) {
	object := wrapFunctionResponse(`{"status": "RUNNING"}`)
	if object["status"] != "RUNNING" {
		t.Fatalf("object passthrough = %v", object)
	}

	list := wrapFunctionResponse(`[1, 2, 3]`)
	if _, ok := list["results"].([]any); !ok {
		t.Fatalf("list wrapping = %v", list)
	}

	scalar := wrapFunctionResponse(`42`)
	if scalar["result"] != float64(42) {
		t.Fatalf("scalar wrapping = %v", scalar)
	}

	plain := wrapFunctionResponse("not json at all")
	if plain["result"] != "not json at all" {
		t.Fatalf("non-JSON wrapping = %v", plain)
	}
}

func TestToolNameForCallIDFallback(t *testing.T) {
	if got := toolNameForCallID("missing", nil); got != "unknown_function" {
		t.Fatalf("toolNameForCallID() = %q", got)
	}
}

func TestGeminiFromWireFinishReasons(t *testing.T) {
	p := geminiForTest()
	req := &agent.CompletionRequest{
		Model: "gemini-2.5-flash",
		Tools: []models.ToolDef{{Name: "create_nifi_objects"}, {Name: "delete_nifi_object"}},
	}

	cases := []struct {
		finish string
		want   ErrorKind
	}{
		{"MALFORMED_FUNCTION_CALL", KindMalformedFunctionCall},
		{"SAFETY", KindSafetyBlocked},
		{"MAX_TOKENS", KindMaxTokens},
	}
	for _, tc := range cases {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: genai.FinishReason(tc.finish)}},
		}
		_, err := p.fromWire(resp, req)
		var pe *ProviderError
		if !errors.As(err, &pe) || pe.Kind != tc.want {
			t.Fatalf("%s: error = %v, want kind %q", tc.finish, err, tc.want)
		}
		if tc.finish == "MALFORMED_FUNCTION_CALL" &&
			(!strings.Contains(pe.Message, "create_nifi_objects") || !strings.Contains(pe.Message, "delete_nifi_object")) {
			t.Fatalf("diagnostic missing suspect tools: %q", pe.Message)
		}
	}
}

func TestGeminiFromWireCollectsParts(t *testing.T) {
	p := geminiForTest()
	resp := &genai.GenerateContentResponse{
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     20,
			CandidatesTokenCount: 9,
		},
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "Inspecting the flow. "},
				{FunctionCall: &genai.FunctionCall{
					Name: "list_nifi_objects",
					Args: map[string]any{"object_type": "processors"},
				}},
			}},
		}},
	}

	completion, err := p.fromWire(resp, &agent.CompletionRequest{Model: "gemini-2.5-flash"})
	if err != nil {
		t.Fatalf("fromWire() error = %v", err)
	}
	if completion.TokensIn != 20 || completion.TokensOut != 9 {
		t.Fatalf("tokens = %d/%d", completion.TokensIn, completion.TokensOut)
	}
	if completion.Content == "" || len(completion.ToolCalls) != 1 {
		t.Fatalf("completion = %+v", completion)
	}
	call := completion.ToolCalls[0]
	if call.ID == "" || call.Name != "list_nifi_objects" {
		t.Fatalf("tool call = %+v", call)
	}
	var args map[string]any
	if err := json.Unmarshal(call.Input, &args); err != nil || args["object_type"] != "processors" {
		t.Fatalf("call input = %s", call.Input)
	}
}
