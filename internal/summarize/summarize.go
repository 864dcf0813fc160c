// Package summarize turns a digest prompt into prose through an
// OpenAI-compatible chat completion endpoint.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"siftgram/internal/retry"
	logx "siftgram/pkg/logx"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 1200
)

const systemPrompt = `You summarize a week of saved chat messages into a short Markdown digest.

Rules:
1. Group the digest into sections: direct messages, group chats, channels, mentions.
2. Call out threads that still look like they need a reply.
3. Keep sender names and chat titles exactly as given.
4. Stay under 400 words and skip empty sections.
5. Output Markdown only, starting with a "# Weekly Digest" heading.`

// Config tunes the completion client. Zero values select the defaults;
// only APIKey is required.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
	Backoff   retry.Policy
}

// Client calls a chat completion API. Safe for concurrent use.
type Client struct {
	api       *openai.Client
	model     string
	timeout   time.Duration
	maxTokens int
	backoff   retry.Policy
	log       logx.Logger
}

func NewClient(cfg Config, log logx.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("summarize: api key is empty")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Backoff.Attempts == 0 {
		cfg.Backoff = retry.Default()
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:       openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		backoff:   cfg.Backoff,
		log:       log,
	}, nil
}

// Summarize sends the prompt and returns the completion text. Transient
// failures are retried on the configured backoff; the timeout applies per
// attempt.
func (c *Client) Summarize(ctx context.Context, prompt string) (string, error) {
	out, err := retry.Do(ctx, c.backoff, func(ctx context.Context) (string, error) {
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.complete(actx, prompt)
	})
	if err != nil {
		return "", err
	}
	c.log.Debug("summary generated",
		logx.Int("prompt_chars", len(prompt)),
		logx.Int("reply_chars", len(out)))
	return out, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("completion returned empty text")
	}
	return out, nil
}
