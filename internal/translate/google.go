package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultGoogleURL is the public endpoint behind translate.google.com.
const DefaultGoogleURL = "https://translate.googleapis.com"

// GoogleWeb calls the keyless web translation endpoint.
type GoogleWeb struct {
	client *resty.Client
}

func NewGoogleWeb(baseURL string) *GoogleWeb {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(1).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; cfe-tariffs/1.0)")
	return &GoogleWeb{client: c}
}

func (g *GoogleWeb) Translate(ctx context.Context, text, lang string) (string, error) {
	res, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"client": "gtx",
			"sl":     "auto",
			"tl":     lang,
			"dt":     "t",
			"q":      text,
		}).
		Get("/translate_a/single")
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", fmt.Errorf("translate endpoint returned %s", res.Status())
	}
	return parseGoogleResponse(res.Body())
}

// parseGoogleResponse joins the translated segments of
// [[["<translated>","<source>",...],...],...].
func parseGoogleResponse(body []byte) (string, error) {
	var payload []json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("unexpected translate response: %w", err)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("empty translate response")
	}
	var segments [][]any
	if err := json.Unmarshal(payload[0], &segments); err != nil {
		return "", fmt.Errorf("unexpected translate segments: %w", err)
	}
	var sb strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			sb.WriteString(s)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("translate response had no text")
	}
	return sb.String(), nil
}
