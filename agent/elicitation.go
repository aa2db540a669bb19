package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"tether/model"
	"tether/protocol"

	"go.uber.org/zap"
)

// FieldKind classifies a form field derived from an elicitation schema.
type FieldKind string

const (
	FieldString       FieldKind = "string"
	FieldNumber       FieldKind = "number"
	FieldInteger      FieldKind = "integer"
	FieldBoolean      FieldKind = "boolean"
	FieldSingleSelect FieldKind = "single-select"
	FieldMultiSelect  FieldKind = "multi-select"
)

// FormField is one input field parsed from a form elicitation's requested
// schema, with the constraint set for its kind.
type FormField struct {
	Name        string
	Title       string
	Description string
	Kind        FieldKind
	Required    bool

	// string constraints
	MinLength *int
	MaxLength *int
	Pattern   string
	Format    string

	// number/integer constraints
	Minimum *float64
	Maximum *float64

	// select options
	Options []string

	// multi-select constraints
	MinItems *int
	MaxItems *int
}

// ParseFormFields derives a typed field list from a requested schema. Fields
// come back sorted by name so rendering and validation order is
// deterministic. Properties with an unsupported shape produce an error
// rather than a silently coerced field.
func ParseFormFields(schema *protocol.RequestedSchema) ([]FormField, error) {
	if schema == nil {
		return nil, nil
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]FormField, 0, len(names))
	for _, name := range names {
		field, err := parseFormField(name, schema.Properties[name])
		if err != nil {
			return nil, err
		}
		field.Required = required[name]
		fields = append(fields, field)
	}
	return fields, nil
}

func parseFormField(name string, prop map[string]any) (FormField, error) {
	field := FormField{
		Name:        name,
		Title:       stringProp(prop, "title"),
		Description: stringProp(prop, "description"),
	}

	propType := stringProp(prop, "type")

	if options, ok := enumOptions(prop["enum"]); ok {
		field.Kind = FieldSingleSelect
		field.Options = options
		return field, nil
	}

	switch propType {
	case "string":
		field.Kind = FieldString
		field.MinLength = intProp(prop, "minLength")
		field.MaxLength = intProp(prop, "maxLength")
		field.Pattern = stringProp(prop, "pattern")
		field.Format = stringProp(prop, "format")
	case "number":
		field.Kind = FieldNumber
		field.Minimum = floatProp(prop, "minimum")
		field.Maximum = floatProp(prop, "maximum")
	case "integer":
		field.Kind = FieldInteger
		field.Minimum = floatProp(prop, "minimum")
		field.Maximum = floatProp(prop, "maximum")
	case "boolean":
		field.Kind = FieldBoolean
	case "array":
		items, _ := prop["items"].(map[string]any)
		options, ok := enumOptions(items["enum"])
		if !ok {
			return FormField{}, fmt.Errorf("field %s: array without item enum is not supported", name)
		}
		field.Kind = FieldMultiSelect
		field.Options = options
		field.MinItems = intProp(prop, "minItems")
		field.MaxItems = intProp(prop, "maxItems")
	default:
		return FormField{}, fmt.Errorf("field %s: unsupported type %q", name, propType)
	}

	return field, nil
}

func stringProp(prop map[string]any, key string) string {
	s, _ := prop[key].(string)
	return s
}

func intProp(prop map[string]any, key string) *int {
	f, ok := prop[key].(float64)
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}

func floatProp(prop map[string]any, key string) *float64 {
	f, ok := prop[key].(float64)
	if !ok {
		return nil
	}
	return &f
}

func enumOptions(value any) ([]string, bool) {
	raw, ok := value.([]any)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	options := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		options = append(options, s)
	}
	return options, true
}

// ValidateSubmission checks content against the field list. Violations are
// reported per field and block acceptance; values are never coerced. A nil
// return means the submission is valid.
func ValidateSubmission(fields []FormField, content map[string]any) *ValidationError {
	violations := make(map[string]string)

	for _, field := range fields {
		value, present := content[field.Name]
		if !present || value == nil || value == "" {
			if field.Required {
				violations[field.Name] = "required"
			}
			continue
		}
		if msg := validateFieldValue(field, value); msg != "" {
			violations[field.Name] = msg
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Fields: violations}
}

func validateFieldValue(field FormField, value any) string {
	switch field.Kind {
	case FieldString:
		return validateString(field, value)
	case FieldNumber:
		return validateNumber(field, value, false)
	case FieldInteger:
		return validateNumber(field, value, true)
	case FieldBoolean:
		if _, ok := value.(bool); !ok {
			return "must be a boolean"
		}
	case FieldSingleSelect:
		s, ok := value.(string)
		if !ok || !containsOption(field.Options, s) {
			return "must be one of the listed options"
		}
	case FieldMultiSelect:
		return validateMultiSelect(field, value)
	}
	return ""
}

func validateString(field FormField, value any) string {
	s, ok := value.(string)
	if !ok {
		return "must be a string"
	}
	if field.MinLength != nil && len(s) < *field.MinLength {
		return fmt.Sprintf("must be at least %d characters", *field.MinLength)
	}
	if field.MaxLength != nil && len(s) > *field.MaxLength {
		return fmt.Sprintf("must be at most %d characters", *field.MaxLength)
	}
	if field.Pattern != "" {
		re, err := regexp.Compile(field.Pattern)
		if err != nil || !re.MatchString(s) {
			return "does not match the required pattern"
		}
	}
	if field.Format != "" {
		if msg := validateFormat(field.Format, s); msg != "" {
			return msg
		}
	}
	return ""
}

func validateFormat(format, s string) string {
	switch format {
	case "email":
		if !strings.Contains(s, "@") {
			return "must be an email address"
		}
	case "uri", "url":
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" {
			return "must be a URL"
		}
	case "date":
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return "must be a date (YYYY-MM-DD)"
		}
	case "date-time":
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return "must be an RFC 3339 timestamp"
		}
	}
	return ""
}

func validateNumber(field FormField, value any, integer bool) string {
	f, ok := value.(float64)
	if !ok {
		switch n := value.(type) {
		case int:
			f = float64(n)
		default:
			return "must be a number"
		}
	}
	if integer && f != math.Trunc(f) {
		return "must be an integer"
	}
	if field.Minimum != nil && f < *field.Minimum {
		return fmt.Sprintf("must be at least %v", *field.Minimum)
	}
	if field.Maximum != nil && f > *field.Maximum {
		return fmt.Sprintf("must be at most %v", *field.Maximum)
	}
	return ""
}

func validateMultiSelect(field FormField, value any) string {
	items, ok := value.([]any)
	if !ok {
		if typed, typedOK := value.([]string); typedOK {
			items = make([]any, len(typed))
			for i, s := range typed {
				items[i] = s
			}
		} else {
			return "must be a list"
		}
	}
	if field.MinItems != nil && len(items) < *field.MinItems {
		return fmt.Sprintf("select at least %d", *field.MinItems)
	}
	if field.MaxItems != nil && len(items) > *field.MaxItems {
		return fmt.Sprintf("select at most %d", *field.MaxItems)
	}
	for _, item := range items {
		s, ok := item.(string)
		if !ok || !containsOption(field.Options, s) {
			return "contains an unlisted option"
		}
	}
	return ""
}

func containsOption(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

// Resolution is the terminal outcome of one elicitation request.
type Resolution struct {
	Action  protocol.ElicitationAction
	Content map[string]any
}

type pendingElicitation struct {
	request protocol.ElicitationRequest
	fields  []FormField
	done    chan Resolution
}

// Mediator tracks outstanding server-initiated input requests and turns user
// responses into protocol-correct replies. Each request moves Pending →
// Accepted | Declined | Cancelled exactly once; a resolved request is never
// re-prompted. With a store attached, each resolution is also written into
// the bound conversation's history so reloading never re-prompts.
type Mediator struct {
	bus    *Bus
	logger *zap.Logger
	store  Store

	mu             sync.Mutex
	pending        map[string]*pendingElicitation
	conversationID string
}

// MediatorOption configures a Mediator.
type MediatorOption func(*Mediator)

// WithElicitationStore attaches the conversation store that resolution
// records are appended to.
func WithElicitationStore(store Store) MediatorOption {
	return func(m *Mediator) {
		m.store = store
	}
}

// NewMediator creates an empty mediator publishing to bus.
func NewMediator(bus *Bus, logger *zap.Logger, opts ...MediatorOption) *Mediator {
	if bus == nil {
		bus = NewBus()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mediator{
		bus:     bus,
		logger:  logger,
		pending: make(map[string]*pendingElicitation),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BindConversation sets the conversation that resolution records are
// appended to. Requests resolved with no conversation bound (or no store
// attached) are answered but leave no history record.
func (m *Mediator) BindConversation(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversationID = conversationID
}

// Register adds a pending request and announces it on the event stream. Form
// requests have their schema parsed up front so an unsupported schema fails
// here rather than at submission time. The returned channel delivers the
// resolution exactly once.
func (m *Mediator) Register(req protocol.ElicitationRequest) (<-chan Resolution, error) {
	var fields []FormField
	if req.Mode == protocol.ElicitationForm {
		var err error
		fields, err = ParseFormFields(req.Schema)
		if err != nil {
			return nil, &ProtocolError{ServerID: req.ServerID, Err: err}
		}
	}

	key := requestKey(req.ID)

	m.mu.Lock()
	if _, exists := m.pending[key]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("elicitation %s already pending", key)
	}
	p := &pendingElicitation{
		request: req,
		fields:  fields,
		done:    make(chan Resolution, 1),
	}
	m.pending[key] = p
	m.mu.Unlock()

	m.bus.Publish(Event{Type: EventElicitationRequestReceived, Elicitation: &req, ServerID: req.ServerID})
	return p.done, nil
}

// HandleRequest services one inbound elicitation request end to end: it
// registers the request and blocks until the user resolves it or ctx is
// cancelled. Cancellation resolves the request as cancelled so it never
// stays pending indefinitely. This is the mcp.ElicitationFunc entry point.
func (m *Mediator) HandleRequest(ctx context.Context, req protocol.ElicitationRequest) (protocol.ElicitationAction, map[string]any, error) {
	done, err := m.Register(req)
	if err != nil {
		return protocol.ElicitationCancel, nil, err
	}

	select {
	case res := <-done:
		return res.Action, res.Content, nil
	case <-ctx.Done():
		m.remove(requestKey(req.ID))
		return protocol.ElicitationCancel, nil, nil
	}
}

// Resolve records the user's decision for a pending request. For form
// requests, accept is validated against the parsed fields first; a
// *ValidationError leaves the request pending so the user can correct and
// resubmit. Resolving an unknown or already-resolved request is an error.
func (m *Mediator) Resolve(requestID string, action protocol.ElicitationAction, content map[string]any) error {
	m.mu.Lock()
	p, ok := m.pending[requestID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("elicitation %s is not pending", requestID)
	}

	if action == protocol.ElicitationAccept && p.request.Mode == protocol.ElicitationForm {
		if verr := ValidateSubmission(p.fields, content); verr != nil {
			return verr
		}
	}
	if action != protocol.ElicitationAccept {
		content = nil
	}

	if !m.remove(requestID) {
		return fmt.Errorf("elicitation %s is not pending", requestID)
	}
	p.done <- Resolution{Action: action, Content: content}
	m.record(p.request, action, content)

	m.logger.Info("elicitation resolved",
		zap.String("id", requestID),
		zap.String("action", string(action)))
	return nil
}

// elicitationRecord is the persisted form of a resolution, stored as the
// content of an elicitation-role message.
type elicitationRecord struct {
	Action  protocol.ElicitationAction `json:"action"`
	Content map[string]any             `json:"content,omitempty"`
	Mode    protocol.ElicitationMode   `json:"mode,omitempty"`
	Message string                     `json:"message,omitempty"`
}

// record writes the outcome into conversation history so re-rendering a
// loaded conversation shows the request as answered. A persistence failure
// is logged, not surfaced: the server already holds the resolution.
func (m *Mediator) record(req protocol.ElicitationRequest, action protocol.ElicitationAction, content map[string]any) {
	m.mu.Lock()
	conversationID := m.conversationID
	m.mu.Unlock()
	if m.store == nil || conversationID == "" {
		return
	}

	payload, err := json.Marshal(elicitationRecord{
		Action:  action,
		Content: content,
		Mode:    req.Mode,
		Message: req.Message,
	})
	if err != nil {
		m.logger.Warn("failed to encode elicitation record", zap.Error(err))
		return
	}

	msg := model.NewMessage(conversationID, model.RoleElicitation, string(payload))
	if err := m.store.AppendMessage(context.Background(), msg); err != nil {
		m.logger.Warn("failed to persist elicitation record",
			zap.String("id", requestKey(req.ID)),
			zap.Error(err))
		return
	}
	m.bus.Publish(Event{Type: EventMessageCreated, Message: &msg, ConversationID: conversationID})
}

// ConfirmURL resolves a URL-mode request after the user confirmed the exact
// destination. confirmed=false routes to decline; a navigation failure
// should be reported by the caller via CancelNavigation instead.
func (m *Mediator) ConfirmURL(requestID string, confirmed bool) error {
	action := protocol.ElicitationAccept
	if !confirmed {
		action = protocol.ElicitationDecline
	}
	return m.Resolve(requestID, action, nil)
}

// CancelNavigation resolves a URL-mode request whose navigation failed.
func (m *Mediator) CancelNavigation(requestID string) error {
	return m.Resolve(requestID, protocol.ElicitationCancel, nil)
}

// InterceptURLElicitation recognizes the out-of-band "URL elicitation
// required" error inside raw tool output and registers it as a pending
// request, giving out-of-band and in-band requests one resolution path. The
// returned channel delivers the eventual resolution.
func (m *Mediator) InterceptURLElicitation(serverID string, raw []byte) (protocol.ElicitationRequest, <-chan Resolution, bool) {
	req, ok := protocol.ParseURLElicitationError(serverID, raw)
	if !ok {
		return protocol.ElicitationRequest{}, nil, false
	}
	done, err := m.Register(req)
	if err != nil {
		m.logger.Warn("failed to register URL elicitation",
			zap.String("server", serverID),
			zap.Error(err))
		return protocol.ElicitationRequest{}, nil, false
	}
	return req, done, true
}

// Pending returns the outstanding requests, for UI listing.
func (m *Mediator) Pending() []protocol.ElicitationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.ElicitationRequest, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, p.request)
	}
	return out
}

// Fields returns the parsed form fields for a pending request.
func (m *Mediator) Fields(requestID string) ([]FormField, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[requestID]
	if !ok {
		return nil, false
	}
	return p.fields, true
}

// ResponseFor serializes a resolution into the JSON-RPC envelope MCP
// expects. Content is omitted entirely unless the action is accept and
// fields were supplied.
func (m *Mediator) ResponseFor(id any, action protocol.ElicitationAction, content map[string]any) protocol.Response {
	return protocol.NewElicitationResponse(id, action, content)
}

// remove deletes a pending entry, reporting whether it was still present.
func (m *Mediator) remove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[key]
	delete(m.pending, key)
	return ok
}

func requestKey(id any) string {
	return fmt.Sprint(id)
}
