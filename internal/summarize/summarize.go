// Package summarize condenses segment text into short notes with a chat
// completion model and appends the result to the manifest.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/heimdex/heimdex-notes/internal/manifest"
	"github.com/heimdex/heimdex-notes/internal/services"
)

const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"

	DefaultAPIVersion  = "2024-07-01-preview"
	DefaultMaxTokens   = 128
	DefaultTemperature = 0.2

	systemPrompt = "You are a concise technical note-taker. Return 1-3 sentences summarizing the content. " +
		"For key concepts, keep them as close to the original transcript as possible"
)

// Summarizer turns one segment's text into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Config selects the summarization provider.
type Config struct {
	Provider   string
	Endpoint   string
	APIKey     string
	Deployment string // model name for the openai provider
	APIVersion string
	MaxTokens  int
	// Temperature nil uses DefaultTemperature; 0 is honoured.
	Temperature *float32
	Timeout     time.Duration
}

// Validate checks that the selected provider has its settings.
func (c Config) Validate() error {
	switch c.provider() {
	case ProviderMock:
		return nil
	case ProviderAzure:
		if c.Endpoint == "" || c.APIKey == "" || c.Deployment == "" {
			return services.Validation("summarize", "missing OpenAI settings (endpoint/key/deployment)")
		}
	case ProviderOpenAI:
		if c.APIKey == "" || c.Deployment == "" {
			return services.Validation("summarize", "missing OpenAI settings (key/model)")
		}
	default:
		return services.Wrap(services.ErrConfiguration, "summarize", "", fmt.Sprintf("unknown provider %q", c.Provider), nil)
	}
	return nil
}

func (c Config) provider() string {
	if c.Provider == "" {
		return ProviderAzure
	}
	return strings.ToLower(c.Provider)
}

// New builds the configured Summarizer.
func New(cfg Config) (Summarizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.provider() == ProviderMock {
		return MockSummarizer{}, nil
	}
	return NewOpenAISummarizer(cfg), nil
}

// OpenAISummarizer calls an OpenAI-compatible chat completions endpoint,
// Azure OpenAI by default.
type OpenAISummarizer struct {
	cli         *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

func NewOpenAISummarizer(cfg Config) *OpenAISummarizer {
	var clientConfig openai.ClientConfig
	if cfg.provider() == ProviderAzure {
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, strings.TrimRight(cfg.Endpoint, "/"))
		clientConfig.APIVersion = cfg.APIVersion
		if clientConfig.APIVersion == "" {
			clientConfig.APIVersion = DefaultAPIVersion
		}
		deployment := cfg.Deployment
		clientConfig.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			clientConfig.BaseURL = cfg.Endpoint
		}
	}

	s := &OpenAISummarizer{
		cli:         openai.NewClientWithConfig(clientConfig),
		model:       cfg.Deployment,
		maxTokens:   cfg.MaxTokens,
		temperature: DefaultTemperature,
		timeout:     cfg.Timeout,
	}
	if cfg.Temperature != nil {
		s.temperature = *cfg.Temperature
	}
	if s.maxTokens <= 0 {
		s.maxTokens = DefaultMaxTokens
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	return s
}

// wireTemperature keeps an explicit 0 in the request. go-openai omits a
// zero temperature, which the service then treats as its default of 1.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// Summarize returns "" for blank text without calling the model.
func (s *OpenAISummarizer) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Summarize concisely:\n" + text + "\n",
			},
		},
		MaxTokens:   s.maxTokens,
		Temperature: wireTemperature(s.temperature),
	}

	resp, err := s.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", services.Wrap(services.ErrRemoteCall, "summarize", "chat completion", "", err)
	}
	if len(resp.Choices) == 0 {
		return "", services.Wrap(services.ErrRemoteCall, "summarize", "chat completion", "no choices in response", nil)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// MockSummarizer keeps the first sentence, capped at 30 words. It lets the
// pipeline run without model credentials.
type MockSummarizer struct{}

func (MockSummarizer) Summarize(_ context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		text = text[:i+1]
	}
	words := strings.Fields(text)
	if len(words) > 30 {
		return strings.Join(words[:30], " ") + "...", nil
	}
	return strings.Join(words, " "), nil
}

// SummarizeManifest returns a copy of m with Summary set on every segment.
// Segments are processed one at a time; other fields are left untouched.
func SummarizeManifest(ctx context.Context, s Summarizer, m *manifest.Manifest, logger *slog.Logger) (*manifest.Manifest, error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := &manifest.Manifest{JobID: m.JobID, Segments: make([]manifest.Segment, len(m.Segments))}
	calls := 0
	for i, seg := range m.Segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		summary, err := s.Summarize(ctx, seg.Text)
		if err != nil {
			return nil, fmt.Errorf("segment %d [%d,%d): %w", i, seg.StartMs, seg.EndMs, err)
		}
		if strings.TrimSpace(seg.Text) != "" {
			calls++
		}
		seg.Summary = &summary
		out.Segments[i] = seg
	}
	logger.Info("segments summarized", "job_id", m.JobID, "segments", len(m.Segments), "model_calls", calls)
	return out, nil
}
