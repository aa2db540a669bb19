package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tether/model"
	"tether/protocol"
)

func formRequest(id string, schema *protocol.RequestedSchema) protocol.ElicitationRequest {
	return protocol.ElicitationRequest{
		ID:       id,
		ServerID: "srv",
		Mode:     protocol.ElicitationForm,
		Message:  "please fill this in",
		Schema:   schema,
	}
}

func nameSchema() *protocol.RequestedSchema {
	return &protocol.RequestedSchema{
		Type: "object",
		Properties: map[string]map[string]any{
			"name": {"type": "string"},
		},
		Required: []string{"name"},
	}
}

func TestFormRoundTrip(t *testing.T) {
	m := NewMediator(NewBus(), nil)

	done, err := m.Register(formRequest("req-1", nameSchema()))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Empty required field blocks submission.
	err = m.Resolve("req-1", protocol.ElicitationAccept, map[string]any{"name": ""})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Fields["name"] != "required" {
		t.Errorf("name violation: got %q", verr.Fields["name"])
	}

	// Still pending after the rejected submission.
	if len(m.Pending()) != 1 {
		t.Fatalf("expected request to stay pending")
	}

	if err := m.Resolve("req-1", protocol.ElicitationAccept, map[string]any{"name": "a"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	res := <-done
	if res.Action != protocol.ElicitationAccept {
		t.Errorf("action: got %q", res.Action)
	}
	if res.Content["name"] != "a" {
		t.Errorf("content: got %v", res.Content)
	}

	// Serialized response carries action and content.
	resp := m.ResponseFor("req-1", res.Action, res.Content)
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		JSONRPC string `json:"jsonrpc"`
		Result  struct {
			Action  string         `json:"action"`
			Content map[string]any `json:"content"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.JSONRPC != "2.0" {
		t.Errorf("jsonrpc: got %q", decoded.JSONRPC)
	}
	if decoded.Result.Action != "accept" || decoded.Result.Content["name"] != "a" {
		t.Errorf("result: got %+v", decoded.Result)
	}
}

func TestResolveIsTerminal(t *testing.T) {
	m := NewMediator(NewBus(), nil)
	if _, err := m.Register(formRequest("req-1", nameSchema())); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := m.Resolve("req-1", protocol.ElicitationDecline, nil); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if err := m.Resolve("req-1", protocol.ElicitationAccept, map[string]any{"name": "a"}); err == nil {
		t.Fatal("second resolve must fail")
	}
}

func TestDeclineDropsContent(t *testing.T) {
	m := NewMediator(NewBus(), nil)
	done, err := m.Register(formRequest("req-1", nameSchema()))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := m.Resolve("req-1", protocol.ElicitationDecline, map[string]any{"name": "x"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	res := <-done
	if res.Content != nil {
		t.Errorf("declined resolution must carry no content, got %v", res.Content)
	}
}

func TestHandleRequestCancelled(t *testing.T) {
	m := NewMediator(NewBus(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	resultCh := make(chan protocol.ElicitationAction, 1)
	go func() {
		action, _, _ := m.HandleRequest(ctx, formRequest("req-1", nameSchema()))
		resultCh <- action
	}()

	// Wait for registration, then cancel instead of resolving.
	deadline := time.After(2 * time.Second)
	for len(m.Pending()) == 0 {
		select {
		case <-deadline:
			t.Fatal("request never registered")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()

	select {
	case action := <-resultCh:
		if action != protocol.ElicitationCancel {
			t.Errorf("action: got %q, want cancel", action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after cancellation")
	}
	if len(m.Pending()) != 0 {
		t.Error("cancelled request must not stay pending")
	}
}

func TestInterceptURLElicitation(t *testing.T) {
	m := NewMediator(NewBus(), nil)

	raw := []byte(`{"error": {"code": -32042, "message": "URL elicitation required",
		"data": {"url": "https://example.com/confirm", "elicitationId": "el-7"}}}`)

	req, done, ok := m.InterceptURLElicitation("srv", raw)
	if !ok {
		t.Fatal("expected interception")
	}
	if req.Mode != protocol.ElicitationURL || req.URL != "https://example.com/confirm" {
		t.Errorf("request: got %+v", req)
	}

	// Ordinary tool output is not intercepted.
	if _, _, ok := m.InterceptURLElicitation("srv", []byte(`{"ok": true}`)); ok {
		t.Error("plain output must not be intercepted")
	}

	// Same resolution path as in-band requests.
	if err := m.ConfirmURL("el-7", false); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	res := <-done
	if res.Action != protocol.ElicitationDecline {
		t.Errorf("action: got %q, want decline", res.Action)
	}
}

func TestParseFormFields(t *testing.T) {
	tests := []struct {
		name     string
		schema   *protocol.RequestedSchema
		wantErr  bool
		validate func(t *testing.T, fields []FormField)
	}{
		{
			name:   "nil schema",
			schema: nil,
			validate: func(t *testing.T, fields []FormField) {
				if fields != nil {
					t.Errorf("expected nil fields")
				}
			},
		},
		{
			name: "string with constraints",
			schema: &protocol.RequestedSchema{
				Type: "object",
				Properties: map[string]map[string]any{
					"username": {
						"type":      "string",
						"minLength": float64(3),
						"maxLength": float64(20),
						"pattern":   "^[a-z]+$",
					},
				},
				Required: []string{"username"},
			},
			validate: func(t *testing.T, fields []FormField) {
				if len(fields) != 1 {
					t.Fatalf("expected 1 field, got %d", len(fields))
				}
				f := fields[0]
				if f.Kind != FieldString || !f.Required {
					t.Errorf("field: got %+v", f)
				}
				if f.MinLength == nil || *f.MinLength != 3 || f.MaxLength == nil || *f.MaxLength != 20 {
					t.Errorf("length constraints: got %+v", f)
				}
			},
		},
		{
			name: "enum becomes single-select",
			schema: &protocol.RequestedSchema{
				Type: "object",
				Properties: map[string]map[string]any{
					"color": {"type": "string", "enum": []any{"red", "green"}},
				},
			},
			validate: func(t *testing.T, fields []FormField) {
				if fields[0].Kind != FieldSingleSelect {
					t.Errorf("kind: got %q", fields[0].Kind)
				}
				if len(fields[0].Options) != 2 {
					t.Errorf("options: got %v", fields[0].Options)
				}
			},
		},
		{
			name: "array with item enum becomes multi-select",
			schema: &protocol.RequestedSchema{
				Type: "object",
				Properties: map[string]map[string]any{
					"toppings": {
						"type":     "array",
						"items":    map[string]any{"enum": []any{"a", "b", "c"}},
						"minItems": float64(1),
						"maxItems": float64(2),
					},
				},
			},
			validate: func(t *testing.T, fields []FormField) {
				f := fields[0]
				if f.Kind != FieldMultiSelect || len(f.Options) != 3 {
					t.Errorf("field: got %+v", f)
				}
				if f.MinItems == nil || *f.MinItems != 1 || f.MaxItems == nil || *f.MaxItems != 2 {
					t.Errorf("item constraints: got %+v", f)
				}
			},
		},
		{
			name: "numeric kinds",
			schema: &protocol.RequestedSchema{
				Type: "object",
				Properties: map[string]map[string]any{
					"age":   {"type": "integer", "minimum": float64(0)},
					"score": {"type": "number", "maximum": float64(1)},
					"ok":    {"type": "boolean"},
				},
			},
			validate: func(t *testing.T, fields []FormField) {
				// Sorted by name: age, ok, score.
				if fields[0].Kind != FieldInteger || fields[1].Kind != FieldBoolean || fields[2].Kind != FieldNumber {
					t.Errorf("kinds: got %q %q %q", fields[0].Kind, fields[1].Kind, fields[2].Kind)
				}
			},
		},
		{
			name: "unsupported type",
			schema: &protocol.RequestedSchema{
				Type: "object",
				Properties: map[string]map[string]any{
					"blob": {"type": "object"},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := ParseFormFields(tt.schema)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.validate(t, fields)
		})
	}
}

func TestValidateSubmission(t *testing.T) {
	minLen := 3
	min := 1.0
	minItems := 2

	tests := []struct {
		name      string
		fields    []FormField
		content   map[string]any
		wantField string // empty means valid
	}{
		{
			name:    "valid string",
			fields:  []FormField{{Name: "name", Kind: FieldString, Required: true}},
			content: map[string]any{"name": "a"},
		},
		{
			name:      "too short",
			fields:    []FormField{{Name: "name", Kind: FieldString, MinLength: &minLen}},
			content:   map[string]any{"name": "ab"},
			wantField: "name",
		},
		{
			name:      "pattern mismatch",
			fields:    []FormField{{Name: "code", Kind: FieldString, Pattern: "^[0-9]+$"}},
			content:   map[string]any{"code": "abc"},
			wantField: "code",
		},
		{
			name:      "bad email format",
			fields:    []FormField{{Name: "mail", Kind: FieldString, Format: "email"}},
			content:   map[string]any{"mail": "not-an-email"},
			wantField: "mail",
		},
		{
			name:      "integer rejects fraction without coercion",
			fields:    []FormField{{Name: "age", Kind: FieldInteger}},
			content:   map[string]any{"age": 2.5},
			wantField: "age",
		},
		{
			name:      "number below minimum",
			fields:    []FormField{{Name: "score", Kind: FieldNumber, Minimum: &min}},
			content:   map[string]any{"score": 0.5},
			wantField: "score",
		},
		{
			name:      "single-select outside options",
			fields:    []FormField{{Name: "color", Kind: FieldSingleSelect, Options: []string{"red", "green"}}},
			content:   map[string]any{"color": "blue"},
			wantField: "color",
		},
		{
			name:      "multi-select under min items",
			fields:    []FormField{{Name: "tags", Kind: FieldMultiSelect, Options: []string{"a", "b", "c"}, MinItems: &minItems}},
			content:   map[string]any{"tags": []any{"a"}},
			wantField: "tags",
		},
		{
			name:    "valid multi-select",
			fields:  []FormField{{Name: "tags", Kind: FieldMultiSelect, Options: []string{"a", "b", "c"}, MinItems: &minItems}},
			content: map[string]any{"tags": []any{"a", "b"}},
		},
		{
			name:    "optional field absent",
			fields:  []FormField{{Name: "nick", Kind: FieldString}},
			content: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateSubmission(tt.fields, tt.content)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("expected valid, got %v", verr.Fields)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			if _, ok := verr.Fields[tt.wantField]; !ok {
				t.Errorf("expected violation on %q, got %v", tt.wantField, verr.Fields)
			}
		})
	}
}

func TestElicitationResponseOmitsContent(t *testing.T) {
	m := NewMediator(NewBus(), nil)

	resp := m.ResponseFor("id-1", protocol.ElicitationDecline, map[string]any{"name": "x"})
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := decoded.Result["content"]; present {
		t.Error("content must be omitted entirely for non-accept actions")
	}
}

func TestResolutionPersistedToHistory(t *testing.T) {
	store := &recordingStore{}
	m := NewMediator(NewBus(), nil, WithElicitationStore(store))
	m.BindConversation("conv-1")

	done, err := m.Register(formRequest("req-1", nameSchema()))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Resolve("req-1", protocol.ElicitationAccept, map[string]any{"name": "a"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	<-done

	if len(store.appended) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(store.appended))
	}
	msg := store.appended[0]
	if msg.Role != model.RoleElicitation {
		t.Errorf("role: got %s, want %s", msg.Role, model.RoleElicitation)
	}
	if msg.ConversationID != "conv-1" {
		t.Errorf("conversation: got %s", msg.ConversationID)
	}

	var record struct {
		Action  protocol.ElicitationAction `json:"action"`
		Content map[string]any             `json:"content"`
	}
	if err := json.Unmarshal([]byte(msg.Content), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.Action != protocol.ElicitationAccept {
		t.Errorf("action: got %s", record.Action)
	}
	if record.Content["name"] != "a" {
		t.Errorf("content: got %v", record.Content)
	}
}

func TestDeclineRecordCarriesNoContent(t *testing.T) {
	store := &recordingStore{}
	m := NewMediator(NewBus(), nil, WithElicitationStore(store))
	m.BindConversation("conv-1")

	if _, err := m.Register(formRequest("req-1", nameSchema())); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Resolve("req-1", protocol.ElicitationDecline, map[string]any{"name": "leak"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(store.appended) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(store.appended))
	}
	var record map[string]json.RawMessage
	if err := json.Unmarshal([]byte(store.appended[0].Content), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if _, present := record["content"]; present {
		t.Error("declined record must not carry submitted content")
	}
}

func TestResolutionWithoutBoundConversation(t *testing.T) {
	store := &recordingStore{}
	m := NewMediator(NewBus(), nil, WithElicitationStore(store))

	if _, err := m.Register(formRequest("req-1", nameSchema())); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Resolve("req-1", protocol.ElicitationAccept, map[string]any{"name": "a"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(store.appended) != 0 {
		t.Errorf("expected no history record, got %d", len(store.appended))
	}
}
