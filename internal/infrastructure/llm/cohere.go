package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/option"

	"ContentCurator/internal/config"
	"ContentCurator/internal/ports"
)

type cohereChatAPI interface {
	Chat(ctx context.Context, request *cohere.ChatRequest, opts ...option.RequestOption) (*cohere.NonStreamedChatResponse, error)
}

// CohereScorer implements ports.Scorer with Cohere's chat endpoint.
type CohereScorer struct {
	api   cohereChatAPI
	model string
}

var _ ports.Scorer = (*CohereScorer)(nil)

// NewCohereScorer builds a scorer from configuration.
func NewCohereScorer(cfg config.CohereConfig) *CohereScorer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(cfg.APIKey),
		cohereclient.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	return &CohereScorer{api: client, model: strings.TrimSpace(cfg.Model)}
}

// Score sends the rubric prompt as a chat message with the system prompt as
// preamble.
func (s *CohereScorer) Score(ctx context.Context, req ports.ScoreRequest) (string, error) {
	if s == nil || s.api == nil {
		return "", errors.New("cohere scorer misconfigured")
	}
	request := &cohere.ChatRequest{Message: req.UserPrompt}
	if s.model != "" {
		model := s.model
		request.Model = &model
	}
	if preamble := strings.TrimSpace(req.SystemPrompt); preamble != "" {
		request.Preamble = &preamble
	}

	resp, err := s.api.Chat(ctx, request)
	if err != nil {
		return "", fmt.Errorf("cohere chat: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return "", errors.New("cohere chat returned empty response")
	}
	return resp.Text, nil
}
