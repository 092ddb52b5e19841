package tier1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel = "gemini-2.0-flash"
)

// GeminiReviewer reviews URLs with Google's Gemini API.
type GeminiReviewer struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	logger     logrus.FieldLogger
}

// Gemini generateContent wire types
type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float32 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGeminiReviewer returns a reviewer; an empty model uses DefaultGeminiModel.
func NewGeminiReviewer(apiKey, model string, timeout time.Duration, logger logrus.FieldLogger) *GeminiReviewer {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiReviewer{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    geminiBaseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger.WithField("component", "tier1"),
	}
}

// Review sends the heuristic findings to Gemini and parses its verdict.
func (g *GeminiReviewer) Review(ctx context.Context, req Request) (Review, error) {
	start := time.Now()
	text, err := g.generate(ctx, buildPrompt(req))
	if err != nil {
		g.logger.WithError(err).WithField("url", req.URL).Warn("Tier-1 review failed")
		return Review{}, err
	}

	verdict, explanation, err := parseReply(text)
	if err != nil {
		g.logger.WithError(err).WithField("url", req.URL).Warn("Tier-1 reply not understood")
		return Review{}, err
	}

	g.logger.WithFields(logrus.Fields{
		"url":         req.URL,
		"tier0":       req.Verdict,
		"tier1":       verdict,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Tier-1 review complete")

	return Review{Verdict: verdict, Explanation: explanation, Model: g.Model}, nil
}

func (g *GeminiReviewer) generate(ctx context.Context, prompt string) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.BaseURL, url.PathEscape(g.Model), url.QueryEscape(g.APIKey))

	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: SystemPrompt}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.2,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 256,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(httpReq)
	if err != nil {
		// The endpoint carries the API key; report only the cause
		if urlErr, ok := err.(*url.Error); ok {
			err = urlErr.Err
		}
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var response geminiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("gemini API error: %s", response.Error.Message)
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}

	return response.Candidates[0].Content.Parts[0].Text, nil
}
