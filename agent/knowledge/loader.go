package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// LoadDir indexes every .md and .txt file under dir, one document per
// blank-line separated paragraph. It returns the number of documents added.
func LoadDir(ctx context.Context, store *InMemoryStore, dir string) (int, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return 0, nil
	}

	var docs []*schema.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".txt":
		default:
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		docs = append(docs, Chunk(filepath.ToSlash(rel), string(raw))...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("knowledge: load %s: %w", dir, err)
	}

	if err := store.Add(ctx, docs...); err != nil {
		return 0, err
	}
	log.Info().Str("dir", dir).Int("documents", len(docs)).Msg("knowledge base indexed")
	return len(docs), nil
}

// Chunk splits text on blank lines.
func Chunk(source, text string) []*schema.Document {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var docs []*schema.Document
	for _, part := range paragraphBreak.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		docs = append(docs, &schema.Document{
			ID:      fmt.Sprintf("%s#%d", source, len(docs)),
			Content: part,
			MetaData: map[string]any{
				"source": source,
				"chunk":  len(docs),
			},
		})
	}
	return docs
}
