package anthropic

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pricelens/backend/internal/domain"
)

// Config holds connection settings for the Anthropic API
type Config struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
}

// Client is a thin, rate-limited wrapper around the Anthropic SDK shared by
// the semantic matcher and the visual checker.
type Client struct {
	client      sdk.Client
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// NewClient creates a client. SDK retries are disabled: the pipeline owns its
// single degraded retry and treats any other failure as an empty result.
func NewClient(config Config, logger *zap.Logger) *Client {
	rpm := config.RequestsPerMinute
	if rpm <= 0 {
		rpm = 50
	}
	if logger == nil {
		logger = zap.L()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	// rate.Limit is requests per second
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), max(rpm/10, 1))

	return &Client{
		client:      sdk.NewClient(opts...),
		rateLimiter: limiter,
		logger:      logger.Named("anthropic"),
	}
}

// message is one request to the Messages API
type message struct {
	model     string
	maxTokens int64
	system    string
	blocks    []sdk.ContentBlockParamUnion
}

// complete sends a single user turn and returns the concatenated text blocks
func (c *Client) complete(ctx context.Context, m message) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	maxTokens := m.maxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(m.model),
		MaxTokens:   maxTokens,
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(m.blocks...)},
		Temperature: sdk.Float(0),
	}
	if m.system != "" {
		params.System = []sdk.TextBlockParam{{Text: m.system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMatcherFailure, err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	c.logger.Debug("message completed",
		zap.String("model", m.model),
		zap.String("stop_reason", string(msg.StopReason)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens))

	return b.String(), nil
}
