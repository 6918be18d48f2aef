package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

const DefaultTopK = 2

var ErrEmptyQuery = errors.New("knowledge: query is required")

type Config struct {
	Dir  string `envconfig:"DIR" split_words:"true"`
	TopK int    `envconfig:"TOP_K" split_words:"true" default:"2"`
}

// InMemoryStore is a small vector index ranked by cosine similarity.
type InMemoryStore struct {
	embedder embedding.Embedder
	topK     int

	mu      sync.RWMutex
	docs    []*schema.Document
	vectors [][]float64
}

var _ retriever.Retriever = (*InMemoryStore)(nil)

func NewInMemoryStore(embedder embedding.Embedder, topK int) (*InMemoryStore, error) {
	if embedder == nil {
		return nil, errors.New("knowledge: embedder is required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &InMemoryStore{embedder: embedder, topK: topK}, nil
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Add embeds and indexes docs. Documents with blank content are skipped.
func (s *InMemoryStore) Add(ctx context.Context, docs ...*schema.Document) error {
	kept := make([]*schema.Document, 0, len(docs))
	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.Content) == "" {
			continue
		}
		kept = append(kept, doc)
		texts = append(texts, doc.Content)
	}
	if len(kept) == 0 {
		return nil
	}

	vectors, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return fmt.Errorf("knowledge: embed documents: %w", err)
	}
	if len(vectors) != len(kept) {
		return fmt.Errorf("knowledge: embedder returned %d vectors for %d documents", len(vectors), len(kept))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, kept...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

func (s *InMemoryStore) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	topK := s.topK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if options.TopK != nil && *options.TopK > 0 {
		topK = *options.TopK
	}

	vectors, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("knowledge: embedder returned %d vectors for the query", len(vectors))
	}
	qv := vectors[0]

	s.mu.RLock()
	type scored struct {
		doc   *schema.Document
		score float64
	}
	ranked := make([]scored, 0, len(s.docs))
	for i, doc := range s.docs {
		ranked = append(ranked, scored{doc: doc, score: cosine(qv, s.vectors[i])})
	}
	s.mu.RUnlock()

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	out := make([]*schema.Document, 0, len(ranked))
	for _, r := range ranked {
		if options.ScoreThreshold != nil && r.score < *options.ScoreThreshold {
			continue
		}
		out = append(out, withScore(r.doc, r.score))
	}
	return out, nil
}

// withScore copies doc so the indexed metadata is never mutated.
func withScore(doc *schema.Document, score float64) *schema.Document {
	meta := make(map[string]any, len(doc.MetaData)+1)
	for k, v := range doc.MetaData {
		meta[k] = v
	}
	clone := &schema.Document{ID: doc.ID, Content: doc.Content, MetaData: meta}
	return clone.WithScore(score)
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
