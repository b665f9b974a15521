package recognition

import (
	"context"
	"fmt"
	"strings"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-1.5-flash"

const identifyPrompt = `You are a pharmaceutical expert.
Given an image of a tablet, capsule, or medicine strip, identify the medicine.

Return ONLY a simple JSON object with this structure:
{"brandName": "Medicine Name", "genericName": "Active Ingredient", "quantity": 10}

Use a realistic brand name. Quantity must be a number.

If you can't identify the medicine, return:
{"error": "Cannot identify medicine"}`

// GeminiRecognizer asks a Gemini multimodal model to identify medicines
type GeminiRecognizer struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger cmtlog.Logger
}

func NewGeminiRecognizer(ctx context.Context, apiKey, model string, logger cmtlog.Logger) (*GeminiRecognizer, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiRecognizer{
		client: client,
		model:  client.GenerativeModel(model),
		logger: logger.With("module", "gemini"),
	}, nil
}

func (g *GeminiRecognizer) Recognize(ctx context.Context, img Image) (*Analysis, error) {
	resp, err := g.model.GenerateContent(ctx,
		genai.Text(identifyPrompt),
		genai.ImageData(imageFormat(img.ContentType), img.Data),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("gemini returned no text")
	}
	g.logger.Debug("Raw Gemini response", "text", sb.String())
	return ParseAnalysis(sb.String()), nil
}

func (g *GeminiRecognizer) Close() error {
	return g.client.Close()
}

// imageFormat maps a content type to the subtype genai.ImageData expects
func imageFormat(contentType string) string {
	if sub, ok := strings.CutPrefix(strings.ToLower(contentType), "image/"); ok && sub != "" {
		return sub
	}
	return "jpeg"
}
