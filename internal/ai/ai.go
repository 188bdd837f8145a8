package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client wraps the GenAI client.
type Client struct {
	genaiClient *genai.Client
	model       *genai.GenerativeModel
}

// NewClient creates a connected AI client for the given model.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}

	m := c.GenerativeModel(model)
	m.SetTemperature(0)
	return &Client{
		genaiClient: c,
		model:       m,
	}, nil
}

// Close terminates the connection.
func (c *Client) Close() {
	if c.genaiClient != nil {
		c.genaiClient.Close()
	}
}

// Translate asks the model for a literal translation of a short label.
func (c *Client) Translate(ctx context.Context, text, lang string) (string, error) {
	res, err := c.model.GenerateContent(ctx, genai.Text(TranslationPrompt(text, lang)))
	if err != nil {
		return "", err
	}
	out := responseText(res)
	if out == "" {
		return "", fmt.Errorf("AI returned empty translation")
	}
	return out, nil
}

// TranslationPrompt keeps the model to a bare answer so it can be stored as-is.
func TranslationPrompt(text, lang string) string {
	return fmt.Sprintf(
		"Translate the following Spanish electricity-tariff label into language code %q. "+
			"Keep proper names of places unchanged unless they have a common %s form. "+
			"Reply with the translation only, no quotes or notes.\n\n%s",
		lang, lang, text,
	)
}

func responseText(res *genai.GenerateContentResponse) string {
	if res == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range res.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	return strings.Trim(strings.TrimSpace(sb.String()), `"`)
}
