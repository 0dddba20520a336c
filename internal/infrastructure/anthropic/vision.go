package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/pricelens/backend/internal/domain"
)

const visionSystemPrompt = `You identify a single grocery product from a store listing image.
Pick at most one catalog item. Use the package design, the printed name and the package size.
Answer with one JSON object: {"id": <catalog id or null>, "confidence": "high"|"medium"|"low"|"none", "rationale": "<one short sentence>"}.
Do not add any other text.`

// VisualChecker asks a vision-capable model to classify one listing image
type VisualChecker struct {
	client    *Client
	model     string
	maxTokens int64
}

// NewVisualChecker creates a visual checker using model for every call
func NewVisualChecker(client *Client, model string, maxTokens int64) *VisualChecker {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &VisualChecker{client: client, model: model, maxTokens: maxTokens}
}

// ClassifyListing implements domain.VisualChecker
func (v *VisualChecker) ClassifyListing(ctx context.Context, req domain.VisualRequest) (string, error) {
	if len(req.Listing.Image) == 0 {
		return "", fmt.Errorf("%w: listing %q has no image", domain.ErrInvalidRequest, req.Listing.DisplayName)
	}
	mediaType := req.Listing.MediaType
	if mediaType == "" {
		mediaType = "image/jpeg"
	}

	return v.client.complete(ctx, message{
		model:     v.model,
		maxTokens: v.maxTokens,
		system:    visionSystemPrompt,
		blocks: []sdk.ContentBlockParamUnion{
			sdk.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(req.Listing.Image)),
			sdk.NewTextBlock(buildVisionPrompt(req)),
		},
	})
}

func buildVisionPrompt(req domain.VisualRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Listing text: %s\nDisplayed price: %.2f\n\nCatalog:\n", strings.TrimSpace(req.Listing.DisplayName), req.Listing.DisplayedPrice)
	for _, item := range req.Items {
		fmt.Fprintf(&b, "%d | %s | %s", item.ID, item.Name, item.Unit)
		if item.VisualDescriptor != "" {
			fmt.Fprintf(&b, " | looks like: %s", item.VisualDescriptor)
		}
		b.WriteString("\n")
	}
	return b.String()
}
