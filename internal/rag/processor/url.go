package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	fetchTimeout  = 30 * time.Second
	maxFetchBytes = 10 << 20 // 10 MB
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// FetchURL downloads a page and returns its visible text: scripts, styles
// and tags stripped, whitespace collapsed.
func FetchURL(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", "chatbot-backend/1.0")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching url", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	text := StripHTML(string(body))
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("url yielded no text content")
	}
	return text, nil
}

// StripHTML walks the markup with a real tokenizer and keeps only text
// nodes outside script, style and noscript elements.
func StripHTML(markup string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))

	var b strings.Builder
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(whitespaceRe.ReplaceAllString(b.String(), " "))
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isSkippedTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isSkippedTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isSkippedTag(name string) bool {
	switch name {
	case "script", "style", "noscript", "head":
		return true
	default:
		return false
	}
}
