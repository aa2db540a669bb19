package protocol

import (
	"encoding/json"
	"fmt"
)

// MethodElicitationCreate is the MCP elicitation request method.
const MethodElicitationCreate = "elicitation/create"

// CodeURLElicitationRequired is the out-of-band JSON-RPC error code some
// servers return from a tool call when they need the user to visit a URL
// before the call can proceed.
const CodeURLElicitationRequired = -32042

// ElicitationMode distinguishes form-shaped and URL-confirmation requests.
type ElicitationMode string

const (
	ElicitationForm ElicitationMode = "form"
	ElicitationURL  ElicitationMode = "url"
)

// ElicitationAction is the user's resolution of an elicitation request.
type ElicitationAction string

const (
	ElicitationAccept  ElicitationAction = "accept"
	ElicitationDecline ElicitationAction = "decline"
	ElicitationCancel  ElicitationAction = "cancel"
)

// RequestedSchema is the JSON-Schema fragment a form elicitation carries.
// Property values pass through as raw maps; the mediator derives typed form
// fields from them.
type RequestedSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]map[string]any `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// ElicitationRequest is a pending server-initiated input request, keyed by
// its JSON-RPC id. Form requests carry Schema; URL requests carry URL and
// CorrelationID.
type ElicitationRequest struct {
	ID            any
	ServerID      string
	Mode          ElicitationMode
	Message       string
	Schema        *RequestedSchema
	URL           string
	CorrelationID string
}

// elicitationParams is the wire shape of elicitation/create params.
type elicitationParams struct {
	Message         string           `json:"message"`
	RequestedSchema *RequestedSchema `json:"requestedSchema,omitempty"`
}

// ParseElicitationParams decodes elicitation/create params into a pending
// form request.
func ParseElicitationParams(id any, serverID string, raw json.RawMessage) (ElicitationRequest, error) {
	var params elicitationParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return ElicitationRequest{}, fmt.Errorf("invalid elicitation params: %w", err)
	}
	return ElicitationRequest{
		ID:       id,
		ServerID: serverID,
		Mode:     ElicitationForm,
		Message:  params.Message,
		Schema:   params.RequestedSchema,
	}, nil
}

// elicitationResult is the wire shape of an elicitation resolution. Content
// is omitted entirely unless the action is accept and fields were supplied.
type elicitationResult struct {
	Action  ElicitationAction `json:"action"`
	Content map[string]any    `json:"content,omitempty"`
}

// NewElicitationResponse serializes a resolution into the JSON-RPC envelope
// MCP expects.
func NewElicitationResponse(id any, action ElicitationAction, content map[string]any) Response {
	result := elicitationResult{Action: action}
	if action == ElicitationAccept && len(content) > 0 {
		result.Content = content
	}
	return NewResponse(id, result)
}

// urlElicitationData is the data payload of a URL-elicitation-required error.
type urlElicitationData struct {
	URL           string `json:"url"`
	ElicitationID string `json:"elicitationId"`
	Message       string `json:"message,omitempty"`
}

// ParseURLElicitationError recognizes the out-of-band "URL elicitation
// required" error condition inside raw server output and converts it into
// the same pending-request shape as a normal elicitation, so the mediator
// has one resolution path regardless of origin. The second return is false
// when raw is not that condition.
func ParseURLElicitationError(serverID string, raw []byte) (ElicitationRequest, bool) {
	var envelope struct {
		Error *RPCError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error == nil {
		return ElicitationRequest{}, false
	}
	if envelope.Error.Code != CodeURLElicitationRequired {
		return ElicitationRequest{}, false
	}

	var data urlElicitationData
	if err := json.Unmarshal(envelope.Error.Data, &data); err != nil || data.URL == "" {
		return ElicitationRequest{}, false
	}

	message := data.Message
	if message == "" {
		message = envelope.Error.Message
	}

	return ElicitationRequest{
		ID:            data.ElicitationID,
		ServerID:      serverID,
		Mode:          ElicitationURL,
		Message:       message,
		URL:           data.URL,
		CorrelationID: data.ElicitationID,
	}, true
}
