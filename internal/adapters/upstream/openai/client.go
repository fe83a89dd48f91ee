// Package openai implementa ports.Completer sobre uma API de chat completions compatível com a OpenAI.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/ports"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4"

	maxResponseBytes = 1 << 20
	maxErrorSnippet  = 512
)

var (
	ErrMissingAPIKey     = errors.New("upstream api key is not configured")
	ErrMalformedResponse = errors.New("malformed completion response")
)

// StatusError carrega o status HTTP de uma resposta não-2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	// RetryAttempts inclui a primeira tentativa; 1 desliga o retry.
	RetryAttempts uint
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// MaxConcurrency <= 0 não limita chamadas simultâneas.
	MaxConcurrency int
	// RPS <= 0 não limita a taxa de chamadas.
	RPS   float64
	Burst int

	// Transport base; nil usa http.DefaultTransport.
	Transport http.RoundTripper
}

type Client struct {
	endpoint string
	model    string
	http     *http.Client

	attempts      uint
	retryDelay    time.Duration
	maxRetryDelay time.Duration

	slots   chan struct{}
	limiter *rate.Limiter
}

var _ ports.Completer = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("invalid upstream base url %q", cfg.BaseURL)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 2 * time.Second
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	c := &Client{
		endpoint: baseURL + "/chat/completions",
		model:    model,
		http: &http.Client{
			Transport: &oauth2.Transport{Source: apiKey(cfg.APIKey), Base: base},
		},
		attempts:      cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
	}
	if cfg.MaxConcurrency > 0 {
		c.slots = make(chan struct{}, cfg.MaxConcurrency)
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return c, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Complete envia o prompt como uma única mensagem "user" e retorna o texto da primeira escolha.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	var answer string
	err = retry.Do(func() error {
		var attemptErr error
		answer, attemptErr = c.attempt(ctx, body)
		if attemptErr != nil && !retryable(ctx, attemptErr) {
			return retry.Unrecoverable(attemptErr)
		}
		return attemptErr
	},
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(c.maxRetryDelay),
		retry.MaxJitter(c.retryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("[UPSTREAM] Completion attempt failed, retrying", "attempt", n+1, "max_attempts", c.attempts, "error", err)
		}),
		retry.Context(ctx),
	)
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (c *Client) attempt(ctx context.Context, body []byte) (string, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	slog.Debug("[UPSTREAM] Completion response", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet))
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var parsed chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	return content, nil
}

// acquire espera por uma vaga de concorrência e pelo limiter de taxa.
func (c *Client) acquire(ctx context.Context) (func(), error) {
	release := func() {}
	if c.slots != nil {
		select {
		case c.slots <- struct{}{}:
			release = func() { <-c.slots }
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for upstream slot: %w", ctx.Err())
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			release()
			return nil, fmt.Errorf("wait for upstream rate limit: %w", err)
		}
	}
	return release, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

// apiKey é um oauth2.TokenSource estático que falha quando a chave está vazia.
type apiKey string

func (k apiKey) Token() (*oauth2.Token, error) {
	key := strings.TrimSpace(string(k))
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	return &oauth2.Token{AccessToken: key, TokenType: "Bearer"}, nil
}
