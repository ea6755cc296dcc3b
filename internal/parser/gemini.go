package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const extractionPrompt = `You are a shipping email parser. Extract shipment details from the email below and respond with ONLY a JSON object, no prose and no code fences, using exactly these keys:

{
  "product_name": "short product description, or null",
  "merchant": "store or seller name, or null",
  "carrier": "courier company name, or null",
  "tracking_number": "tracking/AWB number exactly as written, or null",
  "order_number": "order id, or null",
  "status": "one of: ordered, shipped, in transit, out for delivery, delivered, exception",
  "expected_delivery": "expected delivery date as written, or null",
  "ai_summary": "one friendly sentence describing where the shipment is"
}

Rules:
- Use null for anything not present in the email. Never invent values.
- tracking_number must be an actual courier tracking id, not an order id.
- status reflects the email content, defaulting to "ordered" for order confirmations.

From: %s
Subject: %s

%s`

// GeminiConfig configures the Gemini-backed extractor.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	MaxPerMinute    int
	MinInterval     time.Duration
	MaxFailures     int
	Cooldown        time.Duration
	MaxContentChars int
}

// GeminiExtractor implements GenerativeExtractor against the Gemini API.
// After MaxFailures consecutive errors it disables itself for Cooldown so
// a broken key or model outage cannot stall every email in a batch.
type GeminiExtractor struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	vision  *genai.GenerativeModel
	limiter *RateLimiter
	logger  *slog.Logger

	maxFailures     int
	cooldown        time.Duration
	maxContentChars int

	mu            sync.Mutex
	failures      int
	disabledUntil time.Time

	now func() time.Time
}

// NewGeminiExtractor builds the extractor and its rate limiter. Callers
// own the returned extractor's lifetime and must Close it.
func NewGeminiExtractor(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	if cfg.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(cfg.MaxOutputTokens)
	}

	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Minute
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = DefaultMaxContentChars
	}

	return &GeminiExtractor{
		client:          client,
		model:           model,
		vision:          client.GenerativeModel(cfg.Model),
		limiter:         NewRateLimiter(cfg.MaxPerMinute, cfg.MinInterval),
		logger:          logger,
		maxFailures:     cfg.MaxFailures,
		cooldown:        cfg.Cooldown,
		maxContentChars: cfg.MaxContentChars,
		now:             time.Now,
	}, nil
}

// Close releases the underlying API client.
func (g *GeminiExtractor) Close() error {
	return g.client.Close()
}

// Available reports whether the extractor is serving requests.
func (g *GeminiExtractor) Available() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().After(g.disabledUntil)
}

func (g *GeminiExtractor) recordFailure(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	if g.failures >= g.maxFailures {
		g.disabledUntil = g.now().Add(g.cooldown)
		g.failures = 0
		g.logger.Warn("generative extraction disabled after repeated failures",
			"cooldown", g.cooldown, "error", err)
	}
}

func (g *GeminiExtractor) recordSuccess() {
	g.mu.Lock()
	g.failures = 0
	g.mu.Unlock()
}

// Extract sends the email to the model and parses its JSON answer. The
// call is paced by the rate limiter; a context that expires while waiting
// surfaces as ErrRateLimited so callers fall back instead of retrying.
func (g *GeminiExtractor) Extract(ctx context.Context, email EmailContent) (*Result, error) {
	if !g.Available() {
		return nil, ErrGenerativeDisabled
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, ErrRateLimited
	}

	body := email.Body
	if len(body) > g.maxContentChars {
		body = body[:g.maxContentChars]
	}
	prompt := fmt.Sprintf(extractionPrompt, email.From, email.Subject, body)

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		g.recordFailure(err)
		return nil, fmt.Errorf("gemini: generate: %w", err)
	}

	res, err := parseModelResponse(responseText(resp))
	if err != nil {
		g.recordFailure(err)
		return nil, err
	}
	g.recordSuccess()
	res.Method = MethodGenerative
	return res, nil
}

// ExtractImage parses a screenshot of an order or tracking page. Used by
// the image import endpoint; the same JSON contract applies.
func (g *GeminiExtractor) ExtractImage(ctx context.Context, mimeType string, data []byte) (*Result, error) {
	if !g.Available() {
		return nil, ErrGenerativeDisabled
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, ErrRateLimited
	}

	prompt := fmt.Sprintf(extractionPrompt,
		"(screenshot upload)", "(screenshot of an order or tracking page)", "The shipment details are in the attached image.")
	subtype := strings.TrimPrefix(mimeType, "image/")

	resp, err := g.vision.GenerateContent(ctx, genai.ImageData(subtype, data), genai.Text(prompt))
	if err != nil {
		g.recordFailure(err)
		return nil, fmt.Errorf("gemini: generate from image: %w", err)
	}

	res, err := parseModelResponse(responseText(resp))
	if err != nil {
		g.recordFailure(err)
		return nil, err
	}
	g.recordSuccess()
	res.Method = MethodGenerative
	return res, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String()
}

// parseModelResponse decodes the model's JSON answer, tolerating the two
// failure modes models actually exhibit: markdown code fences around the
// object, and prose before or after it.
func parseModelResponse(text string) (*Result, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, fmt.Errorf("gemini: empty response")
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	s = strings.TrimSpace(s)

	var res Result
	if err := json.Unmarshal([]byte(s), &res); err == nil {
		return &res, nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("gemini: no JSON object in response")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &res); err != nil {
		return nil, fmt.Errorf("gemini: malformed response: %w", err)
	}
	return &res, nil
}
