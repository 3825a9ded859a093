// Package llm adapts an OpenAI-compatible chat endpoint to the single
// complete(prompt) -> text operation the research pipeline consumes.
package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the minimal chat interface the core depends on. It mirrors the
// CreateChatCompletion method so any OpenAI-compatible or local backend can
// be adapted, and tests can stub it.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider adapts *openai.Client to Client.
type OpenAIProvider struct {
	Inner *openai.Client
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}

// Failure kinds surfaced to callers deciding between retry and fallback.
var (
	ErrTimeout         = errors.New("llm timeout")
	ErrConnection      = errors.New("llm connection")
	ErrInvalidResponse = errors.New("llm invalid response")
	ErrTooLong         = errors.New("llm prompt too long")
)

const (
	// BaseTimeout is the floor for a single completion call.
	BaseTimeout = 30 * time.Second
	// tokensPerSecond scales the timeout with prompt size: one extra second
	// per 20 approximate tokens beyond the base window.
	tokensPerSecond = 20
	// charsPerToken is the usual rough estimate for English text.
	charsPerToken = 4
)

// Completer wraps Client with prompt-sized timeouts and a string-in,
// string-out contract.
type Completer struct {
	Client Client
	Model  string
	// Temperature applied when the caller passes a negative value.
	Temperature float32
}

// Complete sends prompt and returns the assistant's text. The call is
// bounded by max(BaseTimeout, approxTokens/20 seconds) on top of any caller
// deadline. maxTokens <= 0 leaves the model default; temperature < 0 uses
// the completer default.
func (c *Completer) Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	if c.Client == nil || strings.TrimSpace(c.Model) == "" {
		return "", errors.New("completer not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, TimeoutFor(prompt))
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		N: 1,
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}
	if temperature >= 0 {
		req.Temperature = temperature
	} else {
		req.Temperature = c.Temperature
	}

	resp, err := c.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", Classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrInvalidResponse
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrInvalidResponse
	}
	return out, nil
}

// TimeoutFor computes the dynamic per-call timeout from the prompt size.
func TimeoutFor(prompt string) time.Duration {
	approxTokens := len(prompt) / charsPerToken
	dynamic := time.Duration(approxTokens/tokensPerSecond) * time.Second
	if dynamic < BaseTimeout {
		return BaseTimeout
	}
	return dynamic
}

// Classify maps transport errors onto the package's failure kinds so callers
// can match with errors.Is. Unrecognized errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(ErrTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"), strings.Contains(msg, "connection reset"):
		return errors.Join(ErrConnection, err)
	case strings.Contains(msg, "maximum context length"), strings.Contains(msg, "context_length_exceeded"):
		return errors.Join(ErrTooLong, err)
	}
	return err
}
