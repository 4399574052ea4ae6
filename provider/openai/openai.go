// Package openai implements the provider contract on top of the OpenAI
// chat completions API. Any OpenAI-compatible endpoint works through
// WithBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/craftwell/swarmkit/provider"
)

const defaultModel = "gpt-4o-mini"

// Provider is an OpenAI-backed generation service.
type Provider struct {
	client openai.Client
	model  string
	name   string
}

var _ provider.Provider = (*Provider)(nil)

type options struct {
	apiKey        string
	baseURL       string
	model         string
	name          string
	clientOptions []openaiopt.RequestOption
}

// Option configures the provider.
type Option func(*options)

// WithAPIKey sets the API key. When empty, the client falls back to the
// OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithModel selects the chat model. Defaults to gpt-4o-mini.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithName overrides the provider name reported in logs and results.
// Useful when several candidates share the OpenAI wire format.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithClientOptions forwards extra request options to the underlying
// openai-go client.
func WithClientOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.clientOptions = append(o.clientOptions, opts...) }
}

// New creates an OpenAI-backed provider.
func New(opts ...Option) *Provider {
	o := &options{model: defaultModel}
	for _, opt := range opts {
		opt(o)
	}

	var clientOpts []openaiopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.clientOptions...)

	name := o.name
	if name == "" {
		name = "openai/" + o.model
	}
	return &Provider{
		client: openai.NewClient(clientOpts...),
		model:  o.model,
		name:   name,
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return p.name }

// Probe implements provider.Provider with a model list call, the
// cheapest request that still exercises auth and transport.
func (p *Provider) Probe(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai probe failed: %w", err)
	}
	return nil
}

// Generate implements provider.Provider with a non-streaming chat
// completion.
func (p *Provider) Generate(
	ctx context.Context,
	system, user string,
	opts provider.GenerateOptions,
) (string, error) {
	request := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	if opts.Temperature != nil {
		request.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.MaxTokens != nil {
		request.MaxCompletionTokens = openai.Int(int64(*opts.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, request)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
