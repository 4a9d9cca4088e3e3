package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saadjs/nibbles/internal/model"
)

func replyWith(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(body)
}

func TestAnalyzeSendsImageAndParsesFencedJSON(t *testing.T) {
	t.Parallel()

	var got chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		var raw struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode request: %v", err)
		}
		got.Model = raw.Model
		if len(raw.Messages) == 2 {
			var parts []contentPart
			if err := json.Unmarshal(raw.Messages[1].Content, &parts); err != nil {
				t.Errorf("decode user parts: %v", err)
			}
			got.Messages = []chatMessage{{Role: raw.Messages[1].Role, Content: parts}}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(replyWith("```json\n" + `{
  "items": [{"name": " Grilled chicken ", "portion": "150g", "calories": 250, "protein_g": 46.5, "carbs_g": 0, "fat_g": 5.4}],
  "totals": {"calories": 250, "protein_g": 46.5, "carbs_g": 0, "fat_g": 5.4},
  "overall_confidence": 0.9,
  "notes": "Lean protein"
}` + "\n```")))
	}))
	defer ts.Close()

	c := &Client{APIKey: "sk-test", BaseURL: ts.URL, Model: "gpt-4o-mini", HTTPClient: ts.Client()}
	analysis, err := c.Analyze(context.Background(), model.AnalysisRequest{Text: "chicken", Image: []byte{0xff, 0xd8}, ImageMIME: "image/jpeg"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.Totals.Calories != 250 || analysis.OverallConfidence != 0.9 {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}
	if len(analysis.Items) != 1 || analysis.Items[0].Name != "Grilled chicken" {
		t.Fatalf("expected trimmed item name, got %+v", analysis.Items)
	}
	if got.Model != "gpt-4o-mini" {
		t.Fatalf("expected configured model, got %q", got.Model)
	}
	parts, _ := got.Messages[0].Content.([]contentPart)
	if len(parts) != 2 || parts[0].ImageURL == nil || !strings.HasPrefix(parts[0].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Fatalf("expected image part first, got %+v", parts)
	}
	if !strings.Contains(parts[1].Text, "User description") {
		t.Fatalf("expected photo+text prompt, got %q", parts[1].Text)
	}
}

func TestAnalyzeRetriesRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		_, _ = w.Write([]byte(replyWith(`{"items":[],"totals":{"calories":120,"protein_g":1,"carbs_g":30,"fat_g":0},"overall_confidence":0.6}`)))
	}))
	defer ts.Close()

	c := &Client{APIKey: "k", BaseURL: ts.URL, HTTPClient: ts.Client(), RetryWait: time.Millisecond}
	analysis, err := c.Analyze(context.Background(), model.AnalysisRequest{Text: "banana"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if calls.Load() != 2 || analysis.Totals.Calories != 120 {
		t.Fatalf("expected success on second attempt, calls=%d analysis=%+v", calls.Load(), analysis)
	}
}

func TestAnalyzeDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := &Client{APIKey: "bad", BaseURL: ts.URL, HTTPClient: ts.Client(), RetryWait: time.Millisecond}
	if _, err := c.Analyze(context.Background(), model.AnalysisRequest{Text: "toast"}); err == nil {
		t.Fatalf("expected error for 401")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestAnalyzeGivesUpAfterRepeatedServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := &Client{APIKey: "k", BaseURL: ts.URL, HTTPClient: ts.Client(), RetryWait: time.Millisecond}
	_, err := c.Analyze(context.Background(), model.AnalysisRequest{Text: "soup"})
	var se *statusError
	if !errors.As(err, &se) || se.code != http.StatusServiceUnavailable {
		t.Fatalf("expected the last 503, got %v", err)
	}
	if errors.Is(err, model.ErrUnusableAnalysis) {
		t.Fatalf("an outage is not an unusable analysis: %v", err)
	}
	if calls.Load() != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, calls.Load())
	}
}

func TestAnalyzeStopsRetryingWhenContextEnds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := &Client{APIKey: "k", BaseURL: ts.URL, HTTPClient: ts.Client(), RetryWait: time.Hour}
	if _, err := c.Analyze(ctx, model.AnalysisRequest{Text: "soup"}); err == nil {
		t.Fatalf("expected an error once the context is cancelled")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestAnalyzeValidatesInput(t *testing.T) {
	t.Parallel()
	c := &Client{APIKey: "k"}
	if _, err := c.Analyze(context.Background(), model.AnalysisRequest{Text: "  "}); err == nil {
		t.Fatalf("expected error for empty request")
	}
	noKey := &Client{}
	if _, err := noKey.Analyze(context.Background(), model.AnalysisRequest{Text: "apple"}); err == nil {
		t.Fatalf("expected error for missing API key")
	}
}

func TestParseAnalysisRejectsGarbage(t *testing.T) {
	t.Parallel()
	if _, err := ParseAnalysis("I think this is a sandwich"); !errors.Is(err, model.ErrUnusableAnalysis) {
		t.Fatalf("expected ErrUnusableAnalysis, got %v", err)
	}
	a, err := ParseAnalysis(`{"items":[],"totals":{"calories":0},"overall_confidence":3}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.OverallConfidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", a.OverallConfidence)
	}
}

func TestReminderMessage(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(replyWith("  Feed me! I miss your ramen.  ")))
	}))
	defer ts.Close()

	c := &Client{APIKey: "k", BaseURL: ts.URL, HTTPClient: ts.Client()}
	msg, err := c.ReminderMessage(context.Background(), []string{"ramen"})
	if err != nil {
		t.Fatalf("reminder: %v", err)
	}
	if msg != "Feed me! I miss your ramen." {
		t.Fatalf("unexpected message %q", msg)
	}
}
