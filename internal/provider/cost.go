package provider

import (
	"math"
	"strings"
)

// Published list prices in USD.
const (
	geminiInputPer1KChars  = 0.00025
	geminiOutputPer1KChars = 0.0005

	gpt35InputPer1KTokens  = 0.0005
	gpt35OutputPer1KTokens = 0.0015
	gpt4InputPer1KTokens   = 0.03
	gpt4OutputPer1KTokens  = 0.06
)

// EstimateCost returns the approximate USD cost of one transform of text,
// assuming the output is as long as the input.
func (g *Gemini) EstimateCost(text string) float64 {
	chars := float64(len([]rune(text)))
	return chars/1000*geminiInputPer1KChars + chars/1000*geminiOutputPer1KChars
}

// EstimateCost approximates tokens as four characters each.
func (o *OpenAI) EstimateCost(text string) float64 {
	tokens := math.Ceil(float64(len([]rune(text))) / 4)
	if strings.Contains(o.model, "gpt-4") {
		return tokens/1000*gpt4InputPer1KTokens + tokens/1000*gpt4OutputPer1KTokens
	}
	return tokens/1000*gpt35InputPer1KTokens + tokens/1000*gpt35OutputPer1KTokens
}

// CostEstimator is implemented by providers that can price a request.
type CostEstimator interface {
	EstimateCost(text string) float64
}
