// Package llm talks to OpenAI-compatible chat completion APIs and provides an
// offline stand-in for development and tests.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/target/marketpulse/internal/core"
)

// Config configures an HTTPClient.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration

	// APIKey is sent as a static bearer token.
	APIKey string
	// TokenURL enables the OAuth2 client credentials flow instead of APIKey.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// HTTPClient is the base client; http.DefaultClient when nil.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HTTPClient implements core.ModelClient over the chat completions endpoint.
type HTTPClient struct {
	endpoint    string
	model       string
	temperature float64
	timeout     time.Duration
	http        *http.Client
	logger      *slog.Logger
}

var _ core.ModelClient = (*HTTPClient)(nil)

// NewHTTPClient builds a client. Authentication is attached by an oauth2 transport.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("model base url is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("model name is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &HTTPClient{
		endpoint:    base + "/chat/completions",
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		http:        authorizedClient(cfg),
		logger:      logger.With("component", "llm", "model", cfg.Model),
	}, nil
}

func authorizedClient(cfg Config) *http.Client {
	baseClient := cfg.HTTPClient
	if baseClient == nil {
		baseClient = http.DefaultClient
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)

	switch {
	case strings.TrimSpace(cfg.TokenURL) != "":
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		return cc.Client(ctx)
	case strings.TrimSpace(cfg.APIKey) != "":
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.APIKey,
			TokenType:   "Bearer",
		}))
	default:
		return baseClient
	}
}

type chatRequest struct {
	Model       string             `json:"model"`
	Messages    []core.ChatMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message core.ChatMessage `json:"message"`
		Delta   struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete returns the whole completion.
func (c *HTTPClient) Complete(ctx context.Context, messages []core.ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("model error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// Stream yields completion deltas as they arrive. The request is issued on the
// first iteration and the body is closed when the range stops.
func (c *HTTPClient) Stream(ctx context.Context, messages []core.ChatMessage) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.post(ctx, messages, true)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				return
			}
			var chunk chatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				yield("", fmt.Errorf("decode stream chunk: %w", err))
				return
			}
			if chunk.Error != nil {
				yield("", fmt.Errorf("model error: %s", chunk.Error.Message))
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", fmt.Errorf("read stream: %w", err))
			return
		}
		yield("", io.ErrUnexpectedEOF)
	}
}

func (c *HTTPClient) post(ctx context.Context, messages []core.ChatMessage, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("chat completions %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	c.logger.DebugContext(ctx, "chat request accepted", "stream", stream, "latency_ms", time.Since(start).Milliseconds())
	return resp, nil
}
