package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/saadjs/nibbles/internal/model"
)

const (
	defaultBaseURL   = "https://api.openai.com"
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 1000
	maxAttempts      = 3
)

const analysisSystemPrompt = `You are a nutritionist. Analyze food from photos and text descriptions and estimate its nutrition.

Identify every food item, estimate a realistic portion and compute calories and macronutrients for each item.

Respond with ONLY valid JSON, no markdown:

{
  "items": [
    {"name": "Food item", "portion": "150g", "calories": 250, "protein_g": 12.5, "carbs_g": 30.0, "fat_g": 8.0}
  ],
  "totals": {"calories": 250, "protein_g": 12.5, "carbs_g": 30.0, "fat_g": 8.0},
  "overall_confidence": 0.85,
  "notes": "Short observation about the meal (optional)"
}

Guidelines:
- Use plate size, utensils and hands to judge portions. A palm is about 85g of protein, a fist about 1 cup.
- Round calories to the nearest 5 and macros to 1 decimal.
- Confidence: 0.85+ clear, 0.7-0.85 moderate uncertainty, below 0.7 significant uncertainty.
- When uncertain, lean slightly higher on calories. Account for cooking oil, sauces and dressings.
- If the input is not food, return an empty items list and zero totals.`

const reminderSystemPrompt = `You are a small, hungry food-tracking pet writing to your owner.
Write a short reminder (1-3 sentences) to log today's food, based only on the foods they logged in the last 7 days.
Be warm, playful and a little dramatic. If they barely logged anything, be extra sad; if they logged a lot, be proud.
Never guilt-trip. End with a gentle nudge to log today's food.`

type Client struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
	// RetryWait is the first backoff after a 429 or 5xx; it doubles per retry.
	RetryWait time.Duration
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// statusError is returned for non-2xx responses.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("OpenAI request failed with status %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Analyze sends the meal to the chat completions endpoint and decodes the
// structured estimate. It does not judge the result; callers decide what a
// zero-calorie answer means.
func (c *Client) Analyze(ctx context.Context, req model.AnalysisRequest) (model.FoodAnalysis, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && len(req.Image) == 0 {
		return model.FoodAnalysis{}, fmt.Errorf("analysis needs text or an image")
	}

	parts := make([]contentPart, 0, 2)
	if len(req.Image) > 0 {
		mime := strings.TrimSpace(req.ImageMIME)
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, contentPart{
			Type: "image_url",
			ImageURL: &imageURL{
				URL:    "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image),
				Detail: "high",
			},
		})
	}
	var prompt string
	switch {
	case len(req.Image) > 0 && text != "":
		prompt = fmt.Sprintf("Analyze this food image. User description: %q", text)
	case len(req.Image) > 0:
		prompt = "Analyze this food image and estimate nutritional content."
	default:
		prompt = fmt.Sprintf("Analyze this food description and provide nutritional estimates: %q", text)
	}
	parts = append(parts, contentPart{Type: "text", Text: prompt})

	content, err := c.complete(ctx, chatRequest{
		Model: c.model(),
		Messages: []chatMessage{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: parts},
		},
		MaxTokens:   c.maxTokens(),
		Temperature: c.Temperature,
	})
	if err != nil {
		return model.FoodAnalysis{}, err
	}
	return ParseAnalysis(content)
}

// ReminderMessage writes a short nudge to log food, personalised with the
// foods logged recently.
func (c *Client) ReminderMessage(ctx context.Context, recentFoods []string) (string, error) {
	foods := "Nothing logged"
	if len(recentFoods) > 0 {
		foods = strings.Join(recentFoods, ", ")
	}
	content, err := c.complete(ctx, chatRequest{
		Model: c.model(),
		Messages: []chatMessage{
			{Role: "system", Content: reminderSystemPrompt},
			{Role: "user", Content: "Here is the user's food log from the last 7 days:\n" + foods + "\n\nGenerate ONE message."},
		},
		MaxTokens:   150,
		Temperature: 0.9,
	})
	if err != nil {
		return "", err
	}
	msg := strings.TrimSpace(content)
	if msg == "" {
		return "", fmt.Errorf("OpenAI returned an empty reminder")
	}
	return msg, nil
}

// ParseAnalysis decodes a model reply, tolerating a surrounding markdown
// code fence.
func ParseAnalysis(content string) (model.FoodAnalysis, error) {
	raw := stripCodeFence(content)
	var out model.FoodAnalysis
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return model.FoodAnalysis{}, fmt.Errorf("%w: decode analysis JSON: %v", model.ErrUnusableAnalysis, err)
	}
	for i := range out.Items {
		out.Items[i].Name = strings.TrimSpace(out.Items[i].Name)
		out.Items[i].Portion = strings.TrimSpace(out.Items[i].Portion)
	}
	if out.OverallConfidence < 0 {
		out.OverallConfidence = 0
	}
	if out.OverallConfidence > 1 {
		out.OverallConfidence = 1
	}
	return out, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func (c *Client) complete(ctx context.Context, body chatRequest) (string, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return "", fmt.Errorf("missing OpenAI API key")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal OpenAI payload: %w", err)
	}

	wait := c.RetryWait
	if wait <= 0 {
		wait = time.Second
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = wait
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	var content string
	op := func() error {
		out, err := c.send(ctx, payload)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && se.retryable() {
				return err
			}
			return backoff.Permanent(err)
		}
		content = out
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, maxAttempts-1), ctx)); err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) send(ctx context.Context, payload []byte) (string, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create OpenAI request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute OpenAI request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read OpenAI response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{code: resp.StatusCode, body: truncate(string(respBody), 200)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode OpenAI response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("OpenAI error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: OpenAI response has no choices", model.ErrUnusableAnalysis)
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) model() string {
	if m := strings.TrimSpace(c.Model); m != "" {
		return m
	}
	return defaultModel
}

func (c *Client) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return defaultMaxTokens
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
