package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/clipscope/clipscope/internal/config"
)

// Supported providers.
const (
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
	ProviderBedrock  = "bedrock"
)

// Request is one analysis call.
type Request struct {
	Prompt  string
	Content Content
}

// Response is the raw model output plus token usage when reported.
type Response struct {
	Text         string
	InputTokens  *int
	OutputTokens *int
}

// Model is a generative backend that can look at a video.
type Model interface {
	Provider() string
	Name() string
	Analyze(ctx context.Context, req Request) (*Response, error)
}

// NewModel creates the backend named by the configuration.
func NewModel(ctx context.Context, cfg config.AnalysisConfig) (Model, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return NewOpenAIModel(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature), nil
	case ProviderGoogleAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Google AI API key required")
		}
		return NewLangChainModel(ctx, cfg.APIKey, cfg.Model, cfg.Temperature)
	case ProviderBedrock:
		return NewBedrockModel(ctx, cfg.Region, cfg.Model, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unsupported analysis provider: %s", cfg.Provider)
	}
}

// OpenAIModel talks to an OpenAI-compatible chat completions endpoint. The
// video travels as a base64 data URL, which gateways fronting video-capable
// models accept in an image_url part.
type OpenAIModel struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIModel creates a chat completions backend. baseURL may be empty.
func NewOpenAIModel(apiKey, baseURL, model string, temperature float32) *OpenAIModel {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(cfg), model: model, temperature: temperature}
}

func (m *OpenAIModel) Provider() string { return ProviderOpenAI }
func (m *OpenAIModel) Name() string     { return m.model }

// Analyze implements Model.
func (m *OpenAIModel) Analyze(ctx context.Context, req Request) (*Response, error) {
	dataURL := "data:" + req.Content.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Content.Data)

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.model,
		Temperature: m.temperature,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
				{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	in, out := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	return &Response{Text: resp.Choices[0].Message.Content, InputTokens: &in, OutputTokens: &out}, nil
}

// LangChainModel sends the video as a binary part through a langchaingo
// backend. Gemini accepts inline video this way.
type LangChainModel struct {
	llm         llms.Model
	model       string
	provider    string
	temperature float64
}

// NewLangChainModel creates a Gemini backend.
func NewLangChainModel(ctx context.Context, apiKey, model string, temperature float32) (*LangChainModel, error) {
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create googleai model: %w", err)
	}
	return &LangChainModel{llm: llm, model: model, provider: ProviderGoogleAI, temperature: float64(temperature)}, nil
}

func (m *LangChainModel) Provider() string { return m.provider }
func (m *LangChainModel) Name() string     { return m.model }

// Analyze implements Model.
func (m *LangChainModel) Analyze(ctx context.Context, req Request) (*Response, error) {
	messages := []llms.MessageContent{{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.BinaryPart(req.Content.MIMEType, req.Content.Data),
			llms.TextPart(req.Prompt),
		},
	}}

	resp, err := m.llm.GenerateContent(ctx, messages, llms.WithTemperature(m.temperature))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	choice := resp.Choices[0]
	return &Response{
		Text:         choice.Content,
		InputTokens:  intInfo(choice.GenerationInfo, "input_tokens"),
		OutputTokens: intInfo(choice.GenerationInfo, "output_tokens"),
	}, nil
}

func intInfo(info map[string]any, key string) *int {
	switch v := info[key].(type) {
	case int:
		return &v
	case int32:
		n := int(v)
		return &n
	case int64:
		n := int(v)
		return &n
	default:
		return nil
	}
}

// BedrockConverser is the part of the Bedrock runtime client the model uses.
type BedrockConverser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockModel sends the video as a Converse video block.
type BedrockModel struct {
	client      BedrockConverser
	model       string
	temperature float32
}

// NewBedrockModel loads AWS credentials from the default chain.
func NewBedrockModel(ctx context.Context, region, model string, temperature float32) (*BedrockModel, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewBedrockModelWithClient(bedrockruntime.NewFromConfig(awsCfg), model, temperature), nil
}

// NewBedrockModelWithClient wraps an existing client.
func NewBedrockModelWithClient(client BedrockConverser, model string, temperature float32) *BedrockModel {
	return &BedrockModel{client: client, model: model, temperature: temperature}
}

func (m *BedrockModel) Provider() string { return ProviderBedrock }
func (m *BedrockModel) Name() string     { return m.model }

// Analyze implements Model.
func (m *BedrockModel) Analyze(ctx context.Context, req Request) (*Response, error) {
	format := bedrockVideoFormat(req.Content.MIMEType)

	out, err := m.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(m.model),
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberVideo{Value: types.VideoBlock{
					Format: format,
					Source: &types.VideoSourceMemberBytes{Value: req.Content.Data},
				}},
				&types.ContentBlockMemberText{Value: req.Prompt},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{Temperature: aws.Float32(m.temperature)},
	})
	if err != nil {
		return nil, fmt.Errorf("converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected converse output %T", out.Output)
	}
	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}

	resp := &Response{Text: text.String()}
	if out.Usage != nil {
		resp.InputTokens = int32Ptr(out.Usage.InputTokens)
		resp.OutputTokens = int32Ptr(out.Usage.OutputTokens)
	}
	return resp, nil
}

// bedrockVideoFormat maps a MIME type onto a Converse video format. Unknown
// types are sent as mp4.
func bedrockVideoFormat(mimeType string) types.VideoFormat {
	mediaType, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	switch strings.TrimSpace(mediaType) {
	case "video/webm":
		return types.VideoFormatWebm
	case "video/quicktime":
		return types.VideoFormatMov
	case "video/x-matroska", "video/matroska":
		return types.VideoFormatMkv
	case "video/x-flv":
		return types.VideoFormatFlv
	case "video/mpeg":
		return types.VideoFormat("mpeg")
	case "video/x-ms-wmv":
		return types.VideoFormat("wmv")
	case "video/3gpp":
		return types.VideoFormat("three_gp")
	default:
		return types.VideoFormatMp4
	}
}

func int32Ptr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
