package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/replypilot/enrich-cli/pkg/anthropic"
)

// JudgeRequest is a single judgment prompt.
type JudgeRequest struct {
	System string
	Prompt string
}

// Judge sends a prompt to a language model and returns its raw text reply.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) (string, error)
	Name() string
}

// AnthropicJudge judges with a Claude model.
type AnthropicJudge struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicJudge creates an AnthropicJudge.
func NewAnthropicJudge(client anthropic.Client, model string, maxTokens int64) *AnthropicJudge {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicJudge{client: client, model: model, maxTokens: maxTokens}
}

func (j *AnthropicJudge) Name() string { return "anthropic" }

// Judge sends req with the system prompt marked cacheable and a low
// temperature.
func (j *AnthropicJudge) Judge(ctx context.Context, req JudgeRequest) (string, error) {
	temp := 0.2
	resp, err := j.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       j.model,
		MaxTokens:   j.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(req.System),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "judge: anthropic")
	}
	resp.Usage.LogCost(j.model, "identity_judge")

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", eris.Errorf("judge: anthropic returned no text (stop reason %s)", resp.StopReason)
	}
	return text, nil
}

// contentGenerator is the slice of the genai Models service used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiJudge judges with a Gemini model, asking for a JSON response body.
type GeminiJudge struct {
	models contentGenerator
	model  string
}

// NewGeminiJudge creates a GeminiJudge backed by the Gemini API.
func NewGeminiJudge(ctx context.Context, apiKey, model string) (*GeminiJudge, error) {
	if apiKey == "" {
		return nil, eris.New("judge: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "judge: create gemini client")
	}
	return &GeminiJudge{models: client.Models, model: model}, nil
}

func (j *GeminiJudge) Name() string { return "gemini" }

// Judge sends req and returns the response text.
func (j *GeminiJudge) Judge(ctx context.Context, req JudgeRequest) (string, error) {
	resp, err := j.models.GenerateContent(ctx, j.model,
		[]*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.2),
			ResponseMIMEType:  "application/json",
		},
	)
	if err != nil {
		return "", eris.Wrap(err, "judge: gemini")
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", eris.New("judge: gemini returned no text")
	}
	return text, nil
}
