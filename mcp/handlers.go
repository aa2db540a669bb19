package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"tether/protocol"

	"github.com/google/uuid"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// samplingAdapter bridges mcp-go's sampling handler interface to the
// orchestrator's SamplingFunc. The library's loosely-typed content values are
// normalized through JSON into protocol types at this boundary.
type samplingAdapter struct {
	serverID string
	handle   SamplingFunc
}

func (a *samplingAdapter) CreateMessage(ctx context.Context, request mcptypes.CreateMessageRequest) (*mcptypes.CreateMessageResult, error) {
	params, err := decodeSamplingParams(request)
	if err != nil {
		return nil, err
	}

	// The library correlates the JSON-RPC round-trip itself; the id here only
	// keys the orchestrator's own pending-request registry.
	result, err := a.handle(ctx, protocol.SamplingRequest{
		ID:       uuid.New().String(),
		ServerID: a.serverID,
		Params:   params,
	})
	if err != nil {
		return nil, err
	}

	return encodeSamplingResult(result)
}

// decodeSamplingParams re-encodes the library request params as JSON and
// parses them with the protocol package, so string-shorthand content and
// unknown block variants are handled in exactly one place.
func decodeSamplingParams(request mcptypes.CreateMessageRequest) (protocol.SamplingParams, error) {
	raw, err := json.Marshal(request.CreateMessageParams)
	if err != nil {
		return protocol.SamplingParams{}, fmt.Errorf("failed to encode sampling params: %w", err)
	}
	return protocol.ParseSamplingParams(raw)
}

// encodeSamplingResult converts a protocol result back into the library's
// shape. Content stays as produced by the bridge: a single block object for
// text, an array for tool use.
func encodeSamplingResult(result *protocol.SamplingResult) (*mcptypes.CreateMessageResult, error) {
	return &mcptypes.CreateMessageResult{
		SamplingMessage: mcptypes.SamplingMessage{
			Role:    mcptypes.RoleAssistant,
			Content: result.Content,
		},
		Model:      result.Model,
		StopReason: result.StopReason,
	}, nil
}

// elicitationAdapter bridges mcp-go's elicitation handler interface to the
// orchestrator's ElicitationFunc.
type elicitationAdapter struct {
	serverID string
	handle   ElicitationFunc
}

func (a *elicitationAdapter) Elicit(ctx context.Context, request mcptypes.ElicitationRequest) (*mcptypes.ElicitationResult, error) {
	raw, err := json.Marshal(request.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode elicitation params: %w", err)
	}

	req, err := protocol.ParseElicitationParams(uuid.New().String(), a.serverID, raw)
	if err != nil {
		return nil, err
	}

	action, content, err := a.handle(ctx, req)
	if err != nil {
		return nil, err
	}

	response := mcptypes.ElicitationResponse{
		Action: mcptypes.ElicitationResponseAction(action),
	}
	if action == protocol.ElicitationAccept && len(content) > 0 {
		response.Content = content
	}

	return &mcptypes.ElicitationResult{ElicitationResponse: response}, nil
}

// notificationParams flattens a notification's params into a plain map.
func notificationParams(n mcptypes.JSONRPCNotification) map[string]any {
	raw, err := json.Marshal(n.Params)
	if err != nil {
		return nil
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil
	}
	return params
}
