// Package orchestrator implements the request-to-response control loop,
// in buffered and streaming form: it turns a single client call into an
// iterative conversation with an upstream model, interleaving tool
// executions until a terminal condition is reached.
package orchestrator

import (
	"fmt"
	"strings"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/gatewayerrors"
	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// Request is the orchestrator's input, built by the HTTP layer from a
// POST /v1/responses body. Model may carry a "provider@model" or
// "url@model" prefix.
type Request struct {
	Credential         string
	Model              string
	HeaderProvider     string // x-model-provider
	Input              []models.InputItem
	Instructions       string
	Tools              []models.ToolDefinition
	ToolChoice         *models.ToolChoice
	Temperature        *float64
	TopP               *float64
	MaxOutputTokens    int
	Store              bool
	Stream             bool
	PreviousResponseID string
	Metadata           map[string]string
}

// Validate enforces the invalid-request checks the orchestrator itself
// is responsible for (routing and store-lookup checks happen one layer up,
// in internal/httpapi, since they need access to the ResponseStore).
func (r *Request) Validate() error {
	if r == nil || strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("orchestrator: %w: model is required", gatewayerrors.ErrInvalidRequest)
	}
	if r.Credential == "" {
		return fmt.Errorf("orchestrator: %w: missing credential", gatewayerrors.ErrInvalidRequest)
	}
	if len(r.Input) == 0 {
		return fmt.Errorf("orchestrator: %w: input is required", gatewayerrors.ErrInvalidRequest)
	}
	return nil
}

// GenerationParams projects the request's sampling knobs into the shape
// convert.ResponseParams and provider.CompletionRequest both expect.
func (r *Request) GenerationParams() models.GenerationParams {
	return models.GenerationParams{
		Temperature:     r.Temperature,
		TopP:            r.TopP,
		MaxOutputTokens: r.MaxOutputTokens,
	}
}
