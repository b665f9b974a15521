package recognition

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnalysis(t *testing.T) {
	a := ParseAnalysis("```json\n{\"brandName\": \"Crocin\", \"genericName\": \"Paracetamol\", \"quantity\": 15}\n```")
	assert.Equal(t, &Analysis{BrandName: "Crocin", GenericName: "Paracetamol", Quantity: 15}, a)

	a = ParseAnalysis(`{"brandName": "Dolo 650", "genericName": "Paracetamol", "quantity": "20"}`)
	assert.Equal(t, 20, a.Quantity)
}

func TestParseAnalysisDefaults(t *testing.T) {
	for _, text := range []string{"", "I think this is aspirin", "```\n[1,2]\n```"} {
		a := ParseAnalysis(text)
		assert.Equal(t, "Unknown Medicine", a.BrandName, text)
		assert.Equal(t, "Unknown", a.GenericName, text)
		assert.Equal(t, 10, a.Quantity, text)
	}

	a := ParseAnalysis(`{"error": "Cannot identify medicine"}`)
	assert.Equal(t, "Cannot identify medicine", a.Error)
	assert.Equal(t, "Unknown Medicine", a.BrandName)

	a = ParseAnalysis(`{"brandName": "Crocin", "quantity": 0}`)
	assert.Equal(t, 10, a.Quantity)
}

func TestFromFilename(t *testing.T) {
	cases := map[string]string{
		"dolo_650-tablets.jpg": "dolo 650 tablets",
		"Crocin.PNG":           "Crocin",
		"uploads/insulin.jpeg": "insulin",
		".jpg":                 "Sample Medicine",
		"":                     "Sample Medicine",
	}
	for in, want := range cases {
		a := FromFilename(in)
		assert.Equal(t, want, a.BrandName, in)
		assert.Equal(t, 10, a.Quantity)
		assert.Equal(t, FallbackNote, a.Note)
	}
}

type stubRecognizer struct {
	analysis *Analysis
	err      error
}

func (s stubRecognizer) Recognize(context.Context, Image) (*Analysis, error) {
	return s.analysis, s.err
}

func TestAnalyze(t *testing.T) {
	img := Image{Filename: "amoxicillin_500.jpg"}

	a, fallback, err := Analyze(context.Background(), nil, img)
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Equal(t, "amoxicillin 500", a.BrandName)

	a, fallback, err = Analyze(context.Background(), stubRecognizer{analysis: &Analysis{BrandName: "Mox", Quantity: 3}}, img)
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Equal(t, "Mox", a.BrandName)

	a, fallback, err = Analyze(context.Background(), stubRecognizer{err: errors.New("quota")}, img)
	assert.Error(t, err)
	assert.True(t, fallback)
	assert.Equal(t, "amoxicillin 500", a.BrandName)
}

func TestImageFormat(t *testing.T) {
	assert.Equal(t, "png", imageFormat("image/png"))
	assert.Equal(t, "jpeg", imageFormat("application/octet-stream"))
	assert.Equal(t, "jpeg", imageFormat(""))
}
