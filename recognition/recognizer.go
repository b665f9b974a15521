// Package recognition turns a photo of a medicine strip into a stock line suggestion.
package recognition

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	defaultBrandName   = "Unknown Medicine"
	defaultGenericName = "Unknown"
	DefaultQuantity    = 10

	fallbackBrandName   = "Sample Medicine"
	fallbackGenericName = "Sample Generic"
	FallbackNote        = "Created with fallback system. Please update details manually."
)

// Image is an uploaded medicine photo
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Analysis is what the recognizer could tell about the medicine
type Analysis struct {
	BrandName   string `json:"brandName"`
	GenericName string `json:"genericName"`
	Quantity    int    `json:"quantity"`
	Error       string `json:"error,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Recognizer identifies the medicine in an image
type Recognizer interface {
	Recognize(ctx context.Context, img Image) (*Analysis, error)
}

// ParseAnalysis reads the model's text answer. Markdown code fences are
// ignored and anything unparsable degrades to the default analysis.
func ParseAnalysis(text string) *Analysis {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	a := &Analysis{
		BrandName:   defaultBrandName,
		GenericName: defaultGenericName,
		Quantity:    DefaultQuantity,
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return a
	}
	if msg, ok := raw["error"].(string); ok {
		a.Error = msg
	}
	if s, ok := raw["brandName"].(string); ok && strings.TrimSpace(s) != "" {
		a.BrandName = strings.TrimSpace(s)
	}
	if s, ok := raw["genericName"].(string); ok && strings.TrimSpace(s) != "" {
		a.GenericName = strings.TrimSpace(s)
	}
	if q := quantityOf(raw["quantity"]); q > 0 {
		a.Quantity = q
	}
	return a
}

func quantityOf(v interface{}) int {
	switch q := v.(type) {
	case float64:
		return int(q)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(q))
		if err == nil {
			return n
		}
	}
	return 0
}

// FromFilename guesses an analysis from the uploaded file name
func FromFilename(filename string) *Analysis {
	base := filepath.Base(filename)
	if base == "." || base == "/" {
		base = ""
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallbackBrandName
	}
	return &Analysis{
		BrandName:   name,
		GenericName: fallbackGenericName,
		Quantity:    DefaultQuantity,
		Note:        FallbackNote,
	}
}

// Analyze runs r when available and falls back to the filename heuristic
// when r is nil or fails. The boolean reports whether the fallback was used.
func Analyze(ctx context.Context, r Recognizer, img Image) (*Analysis, bool, error) {
	if r != nil {
		a, err := r.Recognize(ctx, img)
		if err == nil && a != nil {
			return a, false, nil
		}
		return FromFilename(img.Filename), true, err
	}
	return FromFilename(img.Filename), true, nil
}
