// Package llm classifies review text through an OpenAI-compatible chat endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"reviewpulse/internal/adapters/observability"
	"reviewpulse/internal/domain"
)

const systemPrompt = `You analyze customer reviews for a local business.
Answer with one JSON object and nothing else:
{"sentiment":"positive|neutral|negative","sentiment_score":<number -1..1>,
 "keywords":[<up to 8 short lowercase phrases>],
 "categories":[<up to 5 of: service, food, price, cleanliness, staff, location, atmosphere, wait time, quality, other>],
 "language":"<ISO 639-1 code>","is_spam":<bool>,
 "detected_response":<the business owner's reply quoted inside the text, or null>}`

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Classifier implements domain.Classifier. The client does not retry; failed
// items are picked up later by the analyze-missing sweep.
type Classifier struct {
	client openai.Client
	cfg    Config
}

func New(cfg Config) *Classifier {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Classifier{client: openai.NewClient(opts...), cfg: cfg}
}

func (c *Classifier) Classify(ctx context.Context, in domain.AnalysisInput) (domain.AnalysisResult, error) {
	format := shared.NewResponseFormatJSONObjectParam()
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage(in)),
		},
		Temperature: openai.Float(c.cfg.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &format,
		},
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			observability.ObserveExternal("llm", "chat_completions", apiErr.StatusCode, time.Since(start))
		} else {
			observability.ObserveExternal("llm", "chat_completions", 0, time.Since(start))
		}
		return domain.AnalysisResult{}, fmt.Errorf("chat completion: %w", err)
	}
	observability.ObserveExternal("llm", "chat_completions", http.StatusOK, time.Since(start))

	if len(resp.Choices) == 0 {
		return domain.AnalysisResult{}, errors.New("chat completion returned no choices")
	}
	return ParseAnalysis(resp.Choices[0].Message.Content)
}

func userMessage(in domain.AnalysisInput) string {
	var b strings.Builder
	if in.Rating > 0 {
		fmt.Fprintf(&b, "Star rating: %d/5\n", in.Rating)
	}
	b.WriteString("Review:\n")
	b.WriteString(strings.TrimSpace(in.Text))
	return b.String()
}
