// Package llm is a chat-completions client for OpenAI-compatible providers
// such as Groq.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"mhassist/internal/backoff"
	"mhassist/internal/config"
)

// Apology is returned to the user when every attempt failed.
const Apology = "I'm sorry, I'm having trouble connecting right now. Please try again later."

const (
	RoleSystem    = goopenai.ChatMessageRoleSystem
	RoleUser      = goopenai.ChatMessageRoleUser
	RoleAssistant = goopenai.ChatMessageRoleAssistant
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces the assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

var ErrEmptyResponse = errors.New("llm returned no choices")

type Client struct {
	client      *goopenai.Client
	model       string
	temperature float32
	maxTokens   int
	attempts    int
	retryDelay  time.Duration
	timeout     time.Duration
	limiter     *rate.Limiter
}

// NewClient builds a client from cfg. The API key is read from the
// environment variable named by cfg.APIKeyEnv.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	model, known := LookupModel(cfg.Model)
	if !known {
		log.WithField("requested", cfg.Model).WithField("model", model.ID).Warn("unknown model, using default")
	}
	oc := goopenai.DefaultConfig(key)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{}

	c := &Client{
		client:      goopenai.NewClientWithConfig(oc),
		model:       model.ID,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		attempts:    max(cfg.RetryAttempts, 1),
		retryDelay:  time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	return c, nil
}

func (c *Client) Model() string { return c.model }

// Complete sends messages and returns the first choice. Failed requests are
// retried with exponential backoff while the error is retryable.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages:    make([]goopenai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			wait := backoff.Delay(c.retryDelay, attempt-1, 0)
			log.WithError(lastErr).WithFields(log.Fields{"attempt": attempt, "wait": wait}).Warn("chat completion failed, retrying")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		reply, err := c.complete(ctx, req)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !backoff.Retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("chat completion failed: %w", lastErr)
}

func (c *Client) complete(ctx context.Context, req goopenai.ChatCompletionRequest) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
