package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/notice-ingest/internal/llm"
)

var _ llm.TextGenerator = (*Client)(nil)

var ErrNoChoices = errors.New("no choices in openai response")

const systemPrompt = "You extract structured data from Nepali government notices. Return ONLY a JSON object."

// Generate implements llm.TextGenerator using chat/completions in JSON mode.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, err := llm.PostWithRetry(ctx, c.http, endpoint, body, headers, c.cfg.MaxRetries, c.cfg.Backoff, c.logger)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}
