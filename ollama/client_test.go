package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeOllama records the model each chat request named and answers with a
// minimal completed response.
func fakeOllama(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var models []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode chat request: %v", err)
		}
		mu.Lock()
		models = append(models, req.Model)
		mu.Unlock()
		fmt.Fprintf(w, `{"model":%q,"message":{"role":"assistant","content":"ok"},"done":true,"done_reason":"stop","prompt_eval_count":3,"eval_count":2}`+"\n", req.Model)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), models...)
	}
}

func TestCompletePerRequestModel(t *testing.T) {
	srv, requestedModels := fakeOllama(t)

	client, err := NewClient(srv.URL, "base-model")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.Complete(context.Background(), "hinted-model", nil, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Content != "ok" || result.DoneReason != "stop" {
		t.Errorf("unexpected result: %+v", result)
	}

	// The hinted model must not stick to the client.
	if got := client.GetModel(); got != "base-model" {
		t.Errorf("client model: got %q, want base-model", got)
	}

	if _, err := client.Complete(context.Background(), "", nil, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	models := requestedModels()
	if len(models) != 2 || models[0] != "hinted-model" || models[1] != "base-model" {
		t.Errorf("requested models: got %v", models)
	}
}
