// Package openai provides a RelationshipGuesser implementation using OpenAI.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

const inferencePrompt = `You help people find relatives in a family graph.
Given two people, guess how person A is related to person B, read as "A is the <code> of B".

Allowed codes: %s

Answer "none" when the two are unlikely to be related or the information is not enough.

Return ONLY a valid JSON object, no other text:
{"code": "<code or none>", "confidence": <0.0-1.0>, "reasoning": "<one short sentence>"}

Example:
Input: A: Omar (male, born 1950), B: Sami (male, born 2005)
Output: {"code": "grandfather", "confidence": 0.6, "reasoning": "Omar is 55 years older than Sami"}`

// Client implements the RelationshipGuesser interface using OpenAI.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a new OpenAI relationship guesser.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := "gpt-4o-mini"
	if cfg.Model != "" {
		model = cfg.Model
	}

	return &Client{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Infer guesses how a relates to b.
func (c *Client) Infer(ctx context.Context, a, b *entities.Person) (*ports.Guess, error) {
	if a == nil || b == nil {
		return nil, errors.New("both persons are required")
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(inferencePrompt, strings.Join(kinship.CodeNames(), ", ")),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("A: %s, B: %s", describe(a), describe(b)),
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	content := cleanJSONResponse(resp.Choices[0].Message.Content)

	var raw rawGuess
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parsing guess JSON: %w (response: %s)", err, content)
	}

	return raw.toGuess(), nil
}

// rawGuess is the JSON structure returned by the model.
type rawGuess struct {
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// toGuess normalizes the model's answer. Unknown codes become an empty guess.
func (r rawGuess) toGuess() *ports.Guess {
	guess := &ports.Guess{
		Confidence: r.Confidence,
		Reasoning:  strings.TrimSpace(r.Reasoning),
	}
	if r.Code == "" || strings.EqualFold(r.Code, "none") {
		return guess
	}
	code, err := kinship.Parse(r.Code)
	if err != nil {
		return guess
	}
	guess.Code = code
	return guess
}

// describe renders the profile fields the model may use.
func describe(p *entities.Person) string {
	parts := []string{string(entities.GenderOf(p))}
	if p.BirthDate != nil {
		parts = append(parts, fmt.Sprintf("born %d", p.BirthDate.Year()))
	}
	return fmt.Sprintf("%s (%s)", p.Name, strings.Join(parts, ", "))
}

// cleanJSONResponse removes markdown code blocks if present.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}

	return strings.TrimSpace(content)
}
