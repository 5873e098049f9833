// Package llm drafts exam questions with an OpenAI-compatible model.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/examhall/internal/llm/prompts"
	"github.com/pavelanni/examhall/internal/model"
)

// DraftRequest describes the question to draft.
type DraftRequest struct {
	Topic      string             `json:"topic"`
	Difficulty prompts.Difficulty `json:"difficulty"`
	Options    int                `json:"options"`
	// Avoid lists existing question texts the draft must not repeat.
	Avoid []string `json:"-"`
}

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   chatCompleter
	model string
}

// New creates a new LLM client and loads the drafting prompts.
func New(baseURL, apiKey, modelName string) (*Client, error) {
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, err
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}, nil
}

// DraftQuestion asks the model for one multiple-choice question. The draft is
// not stored; callers validate it and let an admin decide.
func (c *Client) DraftQuestion(ctx context.Context, req DraftRequest) (model.QuestionImport, error) {
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = prompts.Medium
	}
	systemPrompt, err := prompts.BuildDraftPrompt(difficulty, req.Topic, req.Options, req.Avoid)
	if err != nil {
		return model.QuestionImport{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Draft the question now."},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return model.QuestionImport{}, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.QuestionImport{}, errors.New("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseDraft(raw)
}

// parseDraft decodes the model's JSON reply, tolerating a Markdown code fence
// around it.
func parseDraft(raw string) (model.QuestionImport, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}

	var q model.QuestionImport
	if err := json.Unmarshal([]byte(s), &q); err != nil {
		return model.QuestionImport{}, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	if strings.TrimSpace(q.Text) == "" || len(q.Options) == 0 {
		return model.QuestionImport{}, fmt.Errorf("LLM response has no question (raw: %s)", raw)
	}
	return q, nil
}
