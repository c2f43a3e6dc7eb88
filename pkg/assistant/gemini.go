package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/noah-isme/tutorhub-api/pkg/config"
)

const systemInstruction = "You are a friendly study assistant on a tutoring platform. " +
	"Help students understand concepts step by step, keep answers short, and suggest " +
	"booking a session with a tutor when a topic needs hands-on help."

// ErrEmptyReply is returned when the model produced no text.
var ErrEmptyReply = errors.New("assistant returned an empty reply")

// Turn is one message of conversation history.
type Turn struct {
	FromAssistant bool
	Text          string
}

// Gemini produces assistant replies through the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	config  *genai.GenerateContentConfig
	logger  *zap.Logger
}

// NewGemini connects a Gemini client using the configured API key.
func NewGemini(ctx context.Context, cfg config.AssistantConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{
		client:  client,
		model:   model,
		timeout: cfg.Timeout,
		config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		},
		logger: logger,
	}, nil
}

// Reply generates the assistant's answer to the given history. The last turn is the prompt.
func (g *Gemini) Reply(ctx context.Context, history []Turn) (string, error) {
	contents := BuildContents(history)
	if len(contents) == 0 {
		return "", fmt.Errorf("assistant history is empty")
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := ExtractText(resp)
	if text == "" {
		return "", ErrEmptyReply
	}
	g.logger.Debug("assistant reply generated", zap.String("model", g.model), zap.Int("history", len(history)))
	return text, nil
}

// BuildContents maps history turns onto Gemini roles, skipping blank turns.
func BuildContents(history []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		var role genai.Role = genai.RoleUser
		if turn.FromAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(text, role))
	}
	return contents
}

// ExtractText concatenates the text parts of the first candidate.
func ExtractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String())
}
