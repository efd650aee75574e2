package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAISynthesizer speaks the OpenAI-compatible chat completions
// protocol, which most hosted and self-hosted model servers accept.
type OpenAISynthesizer struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAISynthesizer(cfg OpenAIConfig) (*OpenAISynthesizer, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAISynthesizer{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req Request) (Candidate, error) {
	payload := buildChatPayload(s.model, s.temperature, req)
	body, err := json.Marshal(payload)
	if err != nil {
		return Candidate{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Candidate{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Candidate{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Candidate{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Candidate{}, fmt.Errorf("%w: status=%d body=%s", ErrUnavailable, resp.StatusCode, truncateForLog(rawBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return Candidate{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Candidate{}, fmt.Errorf("%w: empty chat completion choices", ErrUnavailable)
	}

	// An empty or SQL-free reply is bad content, not an outage: the
	// candidate goes to the validator so the retry loop can repair it.
	sql, rationale := splitRationale(stripMarkdownSQL(parsed.Choices[0].Message.Content))
	return Candidate{SQL: sql, Rationale: rationale, Model: s.model}, nil
}

func buildChatPayload(model string, temperature float64, req Request) map[string]any {
	systemPrompt := "You convert natural language questions into a single PostgreSQL-compatible " +
		"SELECT statement against the provided schema. " +
		"Use only the listed tables and columns. Never write anything but a SELECT. " +
		"You may start your answer with a single '-- ' comment line explaining the query. " +
		"Return ONLY SQL. No markdown, no prose."

	var b strings.Builder
	b.WriteString("Schema:\n")
	b.WriteString(req.SchemaView)
	if req.ConversationSummary != "" {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(req.ConversationSummary)
	}
	if len(req.PriorRejections) > 0 {
		feedback, _ := json.Marshal(req.PriorRejections)
		b.WriteString("\nYour previous attempts were rejected (JSON):\n")
		b.Write(feedback)
		b.WriteString("\nFix the listed problems. Do not repeat a rejected query.\n")
	}
	b.WriteString("\nQuestion:\n")
	b.WriteString(strings.TrimSpace(req.Question))

	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": b.String()},
		},
		"temperature": temperature,
	}
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}

// splitRationale peels a leading "-- " comment line off the SQL and
// returns it as the candidate's rationale.
func splitRationale(sql string) (string, string) {
	trimmed := strings.TrimSpace(sql)
	if !strings.HasPrefix(trimmed, "-- ") {
		return trimmed, ""
	}
	line, rest, found := strings.Cut(trimmed, "\n")
	if !found {
		return "", strings.TrimSpace(strings.TrimPrefix(line, "-- "))
	}
	return strings.TrimSpace(rest), strings.TrimSpace(strings.TrimPrefix(line, "-- "))
}

func truncateForLog(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
