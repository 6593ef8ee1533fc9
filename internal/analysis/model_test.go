package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/clipscope/clipscope/internal/config"
)

func TestOpenAIModelSendsVideoAsDataURL(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"techStack\":[\"Go\"]}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 11, "completion_tokens": 7, "total_tokens": 18}
		}`))
	}))
	defer srv.Close()

	m := NewOpenAIModel("test-key", srv.URL+"/v1", "gpt-4o", 0.2)
	resp, err := m.Analyze(context.Background(), Request{
		Prompt:  "describe",
		Content: Content{Data: []byte("abc"), MIMEType: "video/mp4"},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.Text != `{"techStack":["Go"]}` {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.InputTokens == nil || *resp.InputTokens != 11 || *resp.OutputTokens != 7 {
		t.Errorf("usage = %v/%v", resp.InputTokens, resp.OutputTokens)
	}

	raw, _ := json.Marshal(body)
	if !strings.Contains(string(raw), "data:video/mp4;base64,YWJj") {
		t.Errorf("request does not carry the video data URL: %s", raw)
	}
}

type fakeConverser struct {
	input *bedrockruntime.ConverseInput
}

func (f *fakeConverser) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: `{"implementationOverview":`},
				&types.ContentBlockMemberText{Value: `"x"}`},
			},
		}},
		Usage: &types.TokenUsage{InputTokens: aws.Int32(5), OutputTokens: aws.Int32(3), TotalTokens: aws.Int32(8)},
	}, nil
}

func TestBedrockModelSendsVideoBlock(t *testing.T) {
	fake := &fakeConverser{}
	m := NewBedrockModelWithClient(fake, "amazon.nova-pro-v1:0", 0.2)

	resp, err := m.Analyze(context.Background(), Request{
		Prompt:  "describe",
		Content: Content{Data: []byte("abc"), MIMEType: "video/webm"},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.Text != `{"implementationOverview":"x"}` {
		t.Errorf("Text = %q", resp.Text)
	}
	if *resp.InputTokens != 5 || *resp.OutputTokens != 3 {
		t.Errorf("usage = %d/%d", *resp.InputTokens, *resp.OutputTokens)
	}

	if aws.ToString(fake.input.ModelId) != "amazon.nova-pro-v1:0" {
		t.Errorf("ModelId = %s", aws.ToString(fake.input.ModelId))
	}
	blocks := fake.input.Messages[0].Content
	video, ok := blocks[0].(*types.ContentBlockMemberVideo)
	if !ok {
		t.Fatalf("first block = %T, want video", blocks[0])
	}
	if video.Value.Format != types.VideoFormatWebm {
		t.Errorf("format = %s", video.Value.Format)
	}
}

func TestBedrockVideoFormat(t *testing.T) {
	tests := []struct {
		mime string
		want types.VideoFormat
	}{
		{"video/mp4", types.VideoFormatMp4},
		{"video/webm", types.VideoFormatWebm},
		{"video/quicktime", types.VideoFormatMov},
		{"video/x-matroska", types.VideoFormatMkv},
		{"video/x-flv", types.VideoFormatFlv},
		{"Video/QuickTime; codecs=avc1", types.VideoFormatMov},
		{"video/x-unknown", types.VideoFormatMp4},
		{"", types.VideoFormatMp4},
	}
	for _, tt := range tests {
		if got := bedrockVideoFormat(tt.mime); got != tt.want {
			t.Errorf("bedrockVideoFormat(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}

func TestNewModelValidatesProvider(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AnalysisConfig
	}{
		{"unknown provider", config.AnalysisConfig{Provider: "watson"}},
		{"openai without key", config.AnalysisConfig{Provider: ProviderOpenAI}},
		{"googleai without key", config.AnalysisConfig{Provider: ProviderGoogleAI}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewModel(context.Background(), tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}

	m, err := NewModel(context.Background(), config.AnalysisConfig{Provider: ProviderOpenAI, APIKey: "k", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	if m.Provider() != ProviderOpenAI || m.Name() != "gpt-4o" {
		t.Errorf("model = %s/%s", m.Provider(), m.Name())
	}
}

func TestIntInfo(t *testing.T) {
	info := map[string]any{"input_tokens": int32(12), "output_tokens": "n/a"}
	if got := intInfo(info, "input_tokens"); got == nil || *got != 12 {
		t.Errorf("input_tokens = %v", got)
	}
	if got := intInfo(info, "output_tokens"); got != nil {
		t.Errorf("output_tokens = %v, want nil", *got)
	}
}
