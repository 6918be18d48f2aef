package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"

	openrouterx "github.com/tanpawarit/Chative-Appointment-Agent/pkg/openrouter"
)

// keywordEmbedder maps a text to keyword counts so rankings are predictable.
type keywordEmbedder struct {
	vocabulary []string
	calls      int
	err        error
}

func (e *keywordEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		lower := strings.ToLower(text)
		vec := make([]float64, len(e.vocabulary))
		for i, word := range e.vocabulary {
			vec[i] = float64(strings.Count(lower, word))
		}
		out = append(out, vec)
	}
	return out, nil
}

func newTestStore(t *testing.T, topK int) *InMemoryStore {
	t.Helper()

	store, err := NewInMemoryStore(&keywordEmbedder{vocabulary: []string{"horário", "preço", "corte", "barba"}}, topK)
	if err != nil {
		t.Fatalf("NewInMemoryStore() error = %v", err)
	}
	docs := Chunk("faq.md", "Horário: abrimos às 9h.\nHorário de sábado até 13h.\n\nPreço do corte: R$ 50.\n\nBarba: R$ 30, barba completa com toalha quente.")
	if err := store.Add(context.Background(), docs...); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return store
}

func TestRetrieveRanksByCosine(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 0)
	if store.Len() != 3 {
		t.Fatalf("expected 3 documents, got %d", store.Len())
	}

	docs, err := store.Retrieve(context.Background(), "qual o horário?")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(docs) != DefaultTopK {
		t.Fatalf("expected %d documents, got %d", DefaultTopK, len(docs))
	}
	if !strings.HasPrefix(docs[0].Content, "Horário") {
		t.Fatalf("unexpected best match: %q", docs[0].Content)
	}
	if docs[0].MetaData["source"] != "faq.md" {
		t.Fatalf("unexpected metadata: %#v", docs[0].MetaData)
	}
	if docs[0].Score() <= docs[1].Score() {
		t.Fatalf("documents not ordered by score: %v <= %v", docs[0].Score(), docs[1].Score())
	}
}

func TestRetrieveTopKOption(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 2)
	docs, err := store.Retrieve(context.Background(), "barba", retriever.WithTopK(1))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(docs) != 1 || !strings.HasPrefix(docs[0].Content, "Barba") {
		t.Fatalf("unexpected documents: %#v", docs)
	}

	again, err := store.Retrieve(context.Background(), "barba", retriever.WithTopK(1))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(again[0].MetaData) != len(docs[0].MetaData) {
		t.Fatal("retrieval must not mutate indexed metadata")
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 0)
	if _, err := store.Retrieve(context.Background(), "  "); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestAddPropagatesEmbedderError(t *testing.T) {
	t.Parallel()

	store, err := NewInMemoryStore(&keywordEmbedder{err: errors.New("quota exceeded")}, 0)
	if err != nil {
		t.Fatalf("NewInMemoryStore() error = %v", err)
	}
	if err := store.Add(context.Background(), Chunk("a.txt", "hello")...); err == nil {
		t.Fatal("expected embedder error")
	}
	if store.Len() != 0 {
		t.Fatal("failed add must not index documents")
	}
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "servicos"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"faq.md":              "Horário: 9h às 18h.\n\nPreço do corte: R$ 50.",
		"servicos/barba.txt":  "Barba completa.",
		"servicos/ignore.pdf": "binary",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	store, err := NewInMemoryStore(&keywordEmbedder{vocabulary: []string{"barba"}}, 0)
	if err != nil {
		t.Fatalf("NewInMemoryStore() error = %v", err)
	}
	n, err := LoadDir(context.Background(), store, dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if n != 3 || store.Len() != 3 {
		t.Fatalf("expected 3 documents, got n=%d len=%d", n, store.Len())
	}

	docs, err := store.Retrieve(context.Background(), "barba", retriever.WithTopK(1))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if docs[0].MetaData["source"] != "servicos/barba.txt" {
		t.Fatalf("unexpected source: %#v", docs[0].MetaData)
	}
}

func TestLoadDirEmptyPathIsNoop(t *testing.T) {
	t.Parallel()

	embedder := &keywordEmbedder{}
	store, _ := NewInMemoryStore(embedder, 0)
	n, err := LoadDir(context.Background(), store, "")
	if err != nil || n != 0 || embedder.calls != 0 {
		t.Fatalf("LoadDir(\"\") = %d, %v, calls=%d", n, err, embedder.calls)
	}
}

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	t.Parallel()

	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
"data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}],
"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer server.Close()

	client := openrouterx.NewClient(openrouterx.Config{BaseURL: server.URL, APIKey: "test"})
	embedder, err := NewOpenAIEmbedder(client, "text-embedding-3-small")
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder() error = %v", err)
	}

	vectors, err := embedder.EmbedStrings(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedStrings() error = %v", err)
	}
	if gotModel != "text-embedding-3-small" {
		t.Fatalf("unexpected model: %q", gotModel)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Fatalf("vectors not ordered by index: %#v", vectors)
	}
}

func TestNewOpenAIEmbedderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAIEmbedder(nil, "m"); err == nil {
		t.Fatal("expected error for nil client")
	}
	client := openrouterx.NewClient(openrouterx.Config{APIKey: "k"})
	if _, err := NewOpenAIEmbedder(client, " "); err == nil {
		t.Fatal("expected error for empty model")
	}
}
