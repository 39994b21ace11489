package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Source string `json:"source"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model != "clip-test" {
			http.Error(w, "unknown model", http.StatusBadRequest)
			return
		}
		if req.Source == "broken.jpg" {
			http.Error(w, "cannot read image", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 2, 3}})
	})
	mux.HandleFunc("/embed/batch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model   string   `json:"model"`
			Sources []string `json:"sources"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make([][]float32, len(req.Sources))
		for i := range req.Sources {
			out[i] = []float32{float32(i), 1}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	})
	return httptest.NewServer(mux)
}

func TestClientEmbed(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, "clip-test")
	vec, err := c.Embed(context.Background(), "cat.jpg")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 1 {
		t.Fatalf("unexpected embedding: %v", vec)
	}
}

func TestClientEmbed_ServerError(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, "clip-test")
	_, err := c.Embed(context.Background(), "broken.jpg")
	var xerr *Error
	if !errors.As(err, &xerr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if xerr.Source != "broken.jpg" {
		t.Fatalf("Error.Source = %q, want broken.jpg", xerr.Source)
	}
}

func TestClientEmbedBatch(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, "clip-test")
	vecs, err := c.EmbedBatch(context.Background(), []string{"a.jpg", "b.jpg", "c.jpg"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d embeddings, want 3", len(vecs))
	}
	if vecs[2][0] != 2 {
		t.Fatalf("batch order lost: %v", vecs[2])
	}
}

func TestFixed(t *testing.T) {
	f := Fixed(map[string][]float32{"a.jpg": {1, 0}})

	vec, err := f(context.Background(), "a.jpg")
	if err != nil || vec[0] != 1 {
		t.Fatalf("Fixed lookup failed: %v, %v", vec, err)
	}

	_, err = f(context.Background(), "missing.jpg")
	var xerr *Error
	if !errors.As(err, &xerr) || xerr.Source != "missing.jpg" {
		t.Fatalf("expected *Error for missing source, got %v", err)
	}
}
