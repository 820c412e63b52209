package companion

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/google/uuid"
)

// Runtime interface for agent runtime (allows mocking in tests)
type Runtime interface {
	Run(ctx context.Context, req api.Request) (*api.Response, error)
	Close()
}

// runtimeAdapter wraps api.Runtime to implement Runtime interface
type runtimeAdapter struct {
	rt *api.Runtime
}

func (r *runtimeAdapter) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return r.rt.Run(ctx, req)
}

func (r *runtimeAdapter) Close() {
	r.rt.Close()
}

// AgentOptions selects the provider behind an AgentClient.
type AgentOptions struct {
	Provider  string // "anthropic" (default) or "openai"
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Workspace string
}

// RuntimeFactory creates a Runtime instance
type RuntimeFactory func(opts AgentOptions, sysPrompt string) (Runtime, error)

// DefaultRuntimeFactory builds an agentsdk-go runtime with every built-in tool disabled.
func DefaultRuntimeFactory(opts AgentOptions, sysPrompt string) (Runtime, error) {
	var provider api.ModelFactory
	switch strings.ToLower(opts.Provider) {
	case "openai":
		provider = &model.OpenAIProvider{
			APIKey:    opts.APIKey,
			BaseURL:   opts.BaseURL,
			ModelName: opts.Model,
			MaxTokens: opts.MaxTokens,
		}
	default:
		provider = &model.AnthropicProvider{
			APIKey:    opts.APIKey,
			BaseURL:   opts.BaseURL,
			ModelName: opts.Model,
			MaxTokens: opts.MaxTokens,
		}
	}

	root := opts.Workspace
	if root == "" {
		root = os.TempDir()
	}
	rt, err := api.New(context.Background(), api.Options{
		ProjectRoot:         root,
		ModelFactory:        provider,
		SystemPrompt:        sysPrompt,
		MaxIterations:       1,
		EnabledBuiltinTools: []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	return &runtimeAdapter{rt: rt}, nil
}

// AgentClient implements Client on an agentsdk-go runtime. Every call is a
// fresh one-shot session; the persona rides in the system prompt.
type AgentClient struct {
	runtime Runtime
}

func NewAgentClient(opts AgentOptions, factory RuntimeFactory) (*AgentClient, error) {
	if factory == nil {
		factory = DefaultRuntimeFactory
	}
	rt, err := factory(opts, Persona(StyleFriendly))
	if err != nil {
		return nil, err
	}
	return &AgentClient{runtime: rt}, nil
}

func (c *AgentClient) run(ctx context.Context, session, prompt string) (string, error) {
	resp, err := c.runtime.Run(ctx, api.Request{
		Prompt:    prompt,
		SessionID: session + "-" + uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("agent run: %w", err)
	}
	if resp == nil || resp.Result == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Result.Output), nil
}

func (c *AgentClient) Reply(ctx context.Context, p Prompt) (string, error) {
	return c.run(ctx, "reply", p.Render())
}

func (c *AgentClient) ReflectMood(ctx context.Context, line string) (string, error) {
	return c.run(ctx, "reflect", reflectPrompt(line))
}

func (c *AgentClient) Affirmation(ctx context.Context, hint string) (string, error) {
	out, err := c.run(ctx, "affirmation", affirmationPrompt(hint))
	if err != nil {
		return "", err
	}
	return cleanAffirmation(out), nil
}

func (c *AgentClient) ClassifyCrisis(ctx context.Context, text string) (Crisis, error) {
	out, err := c.run(ctx, "crisis", crisisPrompt(text))
	if err != nil {
		return Crisis{}, err
	}
	return ParseCrisis(out), nil
}

func (c *AgentClient) SummarizeAudio(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	return "", ErrAudioUnsupported
}

func (c *AgentClient) Close() {
	if c.runtime != nil {
		c.runtime.Close()
	}
}
