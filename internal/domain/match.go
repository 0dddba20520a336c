package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConfidenceTier is a coarse ordinal describing how sure a stage is about a match
type ConfidenceTier int

const (
	TierNone ConfidenceTier = iota
	TierLow
	TierMedium
	TierHigh
)

func (t ConfidenceTier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "none"
	}
}

// ParseConfidenceTier maps a free-form label to a tier. Unknown labels map to TierNone.
func ParseConfidenceTier(s string) ConfidenceTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return TierHigh
	case "medium", "med":
		return TierMedium
	case "low":
		return TierLow
	default:
		return TierNone
	}
}

// MarshalJSON encodes the tier as its label
func (t ConfidenceTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a tier label
func (t *ConfidenceTier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("confidence tier: %w", err)
	}
	*t = ParseConfidenceTier(s)
	return nil
}

// Stage identifies which pipeline stage produced a match
type Stage string

const (
	StageSemantic Stage = "semantic"
	StageLexical  Stage = "lexical"
	StageVisual   Stage = "visual"
)

// MatchResult is a candidate-to-product attribution produced by one stage.
// A nil ProductID means no confident match.
type MatchResult struct {
	ProductID      *int           `json:"productId"`
	ResolvedPrice  float64        `json:"resolvedPrice"`
	ConfidenceTier ConfidenceTier `json:"confidenceTier"`
	OriginStage    Stage          `json:"originStage"`
}

// MatchStrategy selects the external matcher configuration for a single call.
type MatchStrategy struct {
	Name      string
	Model     string
	MaxTokens int64
}

// SemanticRequest is what the semantic matcher sees: catalog identity and
// candidate prices, never reference prices.
type SemanticRequest struct {
	Items      []CatalogItem  `json:"items"`
	Candidates []RawCandidate `json:"candidates"`
}

// VisualRequest asks the visual checker to classify one listing image
type VisualRequest struct {
	Listing ListingImage
	Items   []CatalogItem
}

// VisualGuess is the parsed answer of the visual checker
type VisualGuess struct {
	ProductID  *int           `json:"id"`
	Confidence ConfidenceTier `json:"confidence"`
	Rationale  string         `json:"rationale"`
}
