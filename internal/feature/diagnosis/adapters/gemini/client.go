// Package gemini はGoogle Gemini APIを使用した対処方法の生成クライアントを提供します。
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"wheatleaf_backend/internal/feature/diagnosis/domain/entity"
	"wheatleaf_backend/internal/feature/diagnosis/usecase"
)

const (
	// DefaultModel はGemini APIのデフォルトモデルです。
	DefaultModel = "gemini-2.5-flash"
	// AdvicePromptTemplate は対処方法のプロンプトテンプレートです。
	AdvicePromptTemplate = "A wheat leaf photo was classified as %q (%s). " +
		"In at most three short sentences, explain how a farmer should respond. " +
		"End with: Consider consulting with an agricultural expert for treatment options."
)

// generator はGemini APIのテキスト生成部分を抽象化します。
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAdvisor はGoogle Gemini APIを使用して病害ごとの対処方法を生成します。
type GeminiAdvisor struct {
	models  generator
	model   string
	timeout time.Duration
}

// GeminiAdvisorがAdvisorを実装していることをコンパイル時に検証します。
var _ usecase.Advisor = (*GeminiAdvisor)(nil)

// NewGeminiAdvisor はADCを使用してGeminiAdvisorの新しいインスタンスを生成します。
// 環境変数 GOOGLE_GENAI_USE_VERTEXAI, GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_LOCATION（または GOOGLE_API_KEY）が必要です。
func NewGeminiAdvisor(ctx context.Context, model string, timeout time.Duration) (*GeminiAdvisor, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiAdvisor{models: client.Models, model: model, timeout: timeout}, nil
}

// Advise はラベルに対する対処方法を生成します。
func (g *GeminiAdvisor) Advise(ctx context.Context, label entity.Label) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(AdvicePromptTemplate, label.String(), label.Recommendation())
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini API request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}
