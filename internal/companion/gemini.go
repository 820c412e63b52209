package companion

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/genai"
)

const (
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultAudioMIME   = "audio/wav"
)

// Generator is the slice of genai.Models used here (allows mocking in tests).
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements Client on the Gemini API.
type GeminiClient struct {
	models Generator
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return NewGeminiClientWithGenerator(client.Models, model), nil
}

func NewGeminiClientWithGenerator(g Generator, model string) *GeminiClient {
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	return &GeminiClient{models: g, model: model}
}

func (c *GeminiClient) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (c *GeminiClient) text(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, nil)
}

func (c *GeminiClient) Reply(ctx context.Context, p Prompt) (string, error) {
	return c.text(ctx, p.Render())
}

func (c *GeminiClient) ReflectMood(ctx context.Context, line string) (string, error) {
	return c.text(ctx, reflectPrompt(line))
}

func (c *GeminiClient) Affirmation(ctx context.Context, hint string) (string, error) {
	out, err := c.text(ctx, affirmationPrompt(hint))
	if err != nil {
		return "", err
	}
	return cleanAffirmation(out), nil
}

func (c *GeminiClient) ClassifyCrisis(ctx context.Context, text string) (Crisis, error) {
	out, err := c.generate(ctx,
		[]*genai.Content{genai.NewContentFromText(crisisPrompt(text), genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return Crisis{}, err
	}
	return ParseCrisis(out), nil
}

func (c *GeminiClient) SummarizeAudio(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if mimeType == "" {
		mimeType = sniffAudio(data)
	}
	parts := []*genai.Part{
		genai.NewPartFromText(audioPrompt),
		genai.NewPartFromBytes(data, mimeType),
	}
	return c.generate(ctx, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil)
}

func (c *GeminiClient) Close() {}

// sniffAudio detects the clip format from its header bytes, falling back to
// DefaultAudioMIME for anything not recognised as audio.
func sniffAudio(data []byte) string {
	if m := mimetype.Detect(data); strings.HasPrefix(m.String(), "audio/") {
		return m.String()
	}
	return DefaultAudioMIME
}
