/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package budget implements the supplemented cost telemetry described in
// SPEC_FULL.md §12: a LiteLLM-style per-token price table used to estimate
// USD cost from token counts an agent chose to self-report, adapted from
// the teacher's internal/controller/budget.go PriceMap.
package budget

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

const litellmPriceMapURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

// ModelPricing holds per-token prices for a model.
type ModelPricing struct {
	InputCostPerToken  float64 `json:"input_cost_per_token"`
	OutputCostPerToken float64 `json:"output_cost_per_token"`
}

// PriceMap is a thread-safe cache of model pricing data.
type PriceMap struct {
	mu        sync.RWMutex
	prices    map[string]ModelPricing
	fetchedAt time.Time
	refreshH  int
	log       logr.Logger
}

// NewPriceMap creates an empty price map with the given refresh interval.
func NewPriceMap(refreshIntervalHours int, log logr.Logger) *PriceMap {
	if refreshIntervalHours <= 0 {
		refreshIntervalHours = 24
	}
	return &PriceMap{
		prices:   make(map[string]ModelPricing),
		refreshH: refreshIntervalHours,
		log:      log.WithName("budget.pricemap"),
	}
}

// RefreshIfStale fetches the remote price table if the cache has expired.
func (pm *PriceMap) RefreshIfStale() {
	pm.mu.RLock()
	age := time.Since(pm.fetchedAt)
	haveData := len(pm.prices) > 0
	pm.mu.RUnlock()

	if age < time.Duration(pm.refreshH)*time.Hour && haveData {
		return
	}
	pm.fetch()
}

func (pm *PriceMap) fetch() {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(litellmPriceMapURL)
	if err != nil {
		pm.log.Error(err, "failed to fetch price map, using cached data")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		pm.log.Info("non-200 response fetching price map", "status", resp.StatusCode)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		pm.log.Error(err, "failed to read price map body")
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		pm.log.Error(err, "failed to parse price map JSON")
		return
	}

	prices := make(map[string]ModelPricing, len(raw))
	for modelName, data := range raw {
		var entry struct {
			InputCostPerToken  *float64 `json:"input_cost_per_token"`
			OutputCostPerToken *float64 `json:"output_cost_per_token"`
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.InputCostPerToken == nil && entry.OutputCostPerToken == nil {
			continue
		}
		p := ModelPricing{}
		if entry.InputCostPerToken != nil {
			p.InputCostPerToken = *entry.InputCostPerToken
		}
		if entry.OutputCostPerToken != nil {
			p.OutputCostPerToken = *entry.OutputCostPerToken
		}
		prices[modelName] = p
	}

	pm.mu.Lock()
	pm.prices = prices
	pm.fetchedAt = time.Now()
	pm.mu.Unlock()

	pm.log.Info("refreshed price map", "models", len(prices))
}

// GetPricing returns the pricing for a model, trying exact match then
// common provider-prefix variations.
func (pm *PriceMap) GetPricing(model string) (ModelPricing, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if p, ok := pm.prices[model]; ok {
		return p, true
	}
	prefixes := []string{
		"anthropic/", "openai/", "azure/", "google/",
		"bedrock/", "vertex_ai/", "groq/", "together_ai/",
	}
	for _, prefix := range prefixes {
		if p, ok := pm.prices[prefix+model]; ok {
			return p, true
		}
	}
	return ModelPricing{}, false
}

// CalculateCost computes estimated USD cost for the given token usage.
func (pm *PriceMap) CalculateCost(model string, tokensIn, tokensOut int64) (float64, error) {
	pricing, ok := pm.GetPricing(model)
	if !ok {
		return 0, fmt.Errorf("budget: no pricing found for model %q", model)
	}
	return float64(tokensIn)*pricing.InputCostPerToken + float64(tokensOut)*pricing.OutputCostPerToken, nil
}

// Usage accumulates token counts self-reported by the agent across an
// episode's predictions (SPEC_FULL.md §12 "Cost/token telemetry").
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Add accumulates one prediction's reported usage.
func (u *Usage) Add(input, output int64) {
	u.InputTokens += input
	u.OutputTokens += output
}

// FormatCost renders a cost as a fixed-precision decimal string with six
// places.
func FormatCost(cost float64) string {
	return strconv.FormatFloat(cost, 'f', 6, 64)
}

// Ceiling is the episode's token/cost budget, set on episode.Engine; a zero
// field places no limit on that axis.
type Ceiling struct {
	MaxTokens  int64
	MaxCostUSD float64
}

// Exceeded reports whether accumulated usage/cost has crossed the ceiling.
func (c Ceiling) Exceeded(u Usage, estimatedCost float64) bool {
	if c.MaxTokens > 0 && u.InputTokens+u.OutputTokens >= c.MaxTokens {
		return true
	}
	if c.MaxCostUSD > 0 && estimatedCost >= c.MaxCostUSD {
		return true
	}
	return false
}
