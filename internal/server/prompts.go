package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const analysisPrompt = `
Identify the item in this input (image or text).
Provide a comprehensive environmental impact analysis, focusing on water usage.

Return a STRICT JSON object with this exact schema:
{
    "item_name": "string",
    "scientific_name": "string",
    "category": "string",
    "confidence_score": "number (0-100)",
    "water_footprint_liters": number,
    "water_footprint_unit": "string (e.g. 'L/kg')",
    "description": "string (brief overview)",
    "severity": "string (Low, Medium, High)",
    "breakdown": {
        "green_water": number,
        "blue_water": number,
        "grey_water": number
    },
    "carbon_footprint": "string (e.g. '0.5 kg CO2e/kg')",
    "land_use": "string (e.g. '0.2 m²/kg')",
    "regional_comparison": [
        {"region": "Global Average", "value": number},
        {"region": "Arid Regions", "value": number},
        {"region": "Temperate", "value": number},
        {"region": "Tropical", "value": number}
    ],
    "tips": ["string", "string"],
    "recommendations": ["string", "string"],
    "production_insights": "string (brief text about how it's made)",
    "translation": {
%s
    }
}
`

const translationBlock = `        "%s": {
            "item_name": "string",
            "category": "string",
            "description": "string",
            "tips": ["string"],
            "recommendations": ["string"],
            "production_insights": "string"
        }`

const chatPrompt = `
You are 'AquaBot', a friendly and knowledgeable Water Sustainability Expert.
Your goal is to help users understand their water footprint and provide practical, daily-life tips to reduce usage.

User Query: %s

Guidelines:
- Be concise, encouraging, and easy to understand.
- Focus on 'daily human needs' like cooking, cleaning, hygiene, and shopping.
- If asked about non-environmental topics, politely steer back to water/sustainability.
- Provide 1-2 specific actionable tips if relevant.

Return a JSON object:
{
    "reply": "string (your helpful response)"
}
`

const habitPrompt = `
Analyze the following list of items consumed by a user and their water footprint:
%s

1. Identify the most water-consuming products in this list.
2. Provide a summary of their usage pattern.
3. Suggest 3 specific, actionable alternatives or habit changes to reduce their water footprint based on THESE specific items.

Return a JSON object:
{
    "most_consuming": ["item1", "item2"],
    "usage_pattern": "string (summary of habits)",
    "recommendations": ["suggestion 1", "suggestion 2", "suggestion 3"]
}
`

// TranslationLanguages are the keys of AnalysisResult.translation.
var TranslationLanguages = []string{"hindi", "tamil", "telugu", "malayalam", "kannada"}

var builtAnalysisPrompt = func() string {
	blocks := make([]string, 0, len(TranslationLanguages))
	for _, lang := range TranslationLanguages {
		blocks = append(blocks, fmt.Sprintf(translationBlock, lang))
	}
	return fmt.Sprintf(analysisPrompt, strings.Join(blocks, ",\n"))
}()

func buildAnalysisPrompt() string {
	return builtAnalysisPrompt
}

func buildTextAnalysisPrompt(item string) string {
	return buildAnalysisPrompt() + "\nInput item: " + item
}

func buildChatPrompt(userMessage string) string {
	return fmt.Sprintf(chatPrompt, userMessage)
}

func buildHabitPrompt(items []any) string {
	lines := make([]string, 0, len(items))
	for _, raw := range items {
		entry, _ := raw.(map[string]any)
		lines = append(lines, fmt.Sprintf(
			"- %s: %s L",
			promptValue(entry, "item_name", "Unknown"),
			promptValue(entry, "water_footprint_liters", "0"),
		))
	}
	return fmt.Sprintf(habitPrompt, strings.Join(lines, "\n"))
}

func promptValue(entry map[string]any, key, fallback string) string {
	raw, ok := entry[key]
	if !ok || raw == nil {
		return fallback
	}
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fallback
		}
		return string(encoded)
	}
}

// parseModelJSON decodes the model reply without any schema checks.
// Numbers are kept as json.Number so they re-encode exactly as received.
func parseModelJSON(raw string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModelOutput, err)
	}
	var extra any
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrInvalidModelOutput)
	}
	return value, nil
}
