package anthropic

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/pricelens/backend/internal/domain"
)

const semanticSystemPrompt = `You match grocery store listings to a product catalog.
Match a listing only when the product name and the package size both agree with the catalog item.
Products that differ only by weight or volume are different products.
Answer with a single JSON object mapping catalog id to the listing price, for example {"3": 2.49}.
Leave out catalog items that have no matching listing. Do not add any other text.`

// SemanticMatcher asks a Claude model to attribute raw candidates to catalog items
type SemanticMatcher struct {
	client *Client
}

// NewSemanticMatcher creates a semantic matcher on top of client
func NewSemanticMatcher(client *Client) *SemanticMatcher {
	return &SemanticMatcher{client: client}
}

// MatchCandidates implements domain.SemanticMatcher. The returned text is the
// raw model answer; parsing and repair happen in the caller.
func (m *SemanticMatcher) MatchCandidates(ctx context.Context, req domain.SemanticRequest, strategy domain.MatchStrategy) (string, error) {
	if strategy.Model == "" {
		return "", fmt.Errorf("%w: strategy %q has no model", domain.ErrMatcherFailure, strategy.Name)
	}

	return m.client.complete(ctx, message{
		model:     strategy.Model,
		maxTokens: strategy.MaxTokens,
		system:    semanticSystemPrompt,
		blocks:    []sdk.ContentBlockParamUnion{sdk.NewTextBlock(buildSemanticPrompt(req))},
	})
}

// buildSemanticPrompt lists catalog items and candidates. Reference prices are
// not part of CatalogItem and never reach the model.
func buildSemanticPrompt(req domain.SemanticRequest) string {
	var b strings.Builder
	b.WriteString("Catalog:\n")
	for _, item := range req.Items {
		fmt.Fprintf(&b, "%d | %s | %s\n", item.ID, item.Name, item.Unit)
	}
	b.WriteString("\nListings:\n")
	for i, c := range req.Candidates {
		fmt.Fprintf(&b, "%d. %s | %s\n", i+1, strings.TrimSpace(c.DisplayName), strconv.FormatFloat(c.RawPrice, 'f', 2, 64))
	}
	return b.String()
}
