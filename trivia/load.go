package trivia

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/guildmod/warden/cache"

	"gopkg.in/yaml.v3"
)

// File is the on-disk bulk-load format for a question bank.
type File struct {
	Collections []Collection `json:"collections" yaml:"collections"`
	Questions   []Question   `json:"questions" yaml:"questions"`
}

// LoadFile replaces the bank contents with a YAML (.yaml, .yml) or JSON (.json) file.
func (b *Bank) LoadFile(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var bf File
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &bf); err != nil {
			return fmt.Errorf("parsing trivia file %s: %w", p, err)
		}
	case ".json":
		if err := json.Unmarshal(raw, &bf); err != nil {
			return fmt.Errorf("parsing trivia file %s: %w", p, err)
		}
	default:
		return fmt.Errorf("unsupported trivia file type: %s", p)
	}
	return b.Load(bf)
}

// Load replaces the bank contents. Questions without an ID are rejected, since IDs need to be stable
// across reloads.
func (b *Bank) Load(bf File) error {
	qs := make([]cache.Entry, 0, len(bf.Questions))
	colls := make([]cache.Entry, 0, len(bf.Collections))
	known := make(map[string]bool)
	for _, c := range bf.Collections {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("collection without a name")
		}
		known[c.Name] = true
		colls = append(colls, cache.Entry{Key: c.Name, Data: c.record()})
	}
	for i, q := range bf.Questions {
		if q.ID == "" {
			return fmt.Errorf("question %d has no id", i)
		}
		for _, name := range q.Collections {
			if name != "" && !known[name] {
				known[name] = true
				colls = append(colls, cache.Entry{Key: name, Data: Collection{Name: name}.record()})
			}
		}
		qs = append(qs, cache.Entry{Key: q.ID, Data: q.record()})
	}
	b.collections.Load(colls)
	b.questions.Load(qs)
	return nil
}

// Export returns the bank contents in bulk-load form, questions in insertion order.
func (b *Bank) Export() File {
	var bf File
	bf.Collections = b.Collections()
	for id, rec := range b.questions.All() {
		bf.Questions = append(bf.Questions, questionFromRecord(id, rec))
	}
	return bf
}

type LintIssue struct {
	ID      string   `json:"id"`
	Bucket  string   `json:"bucket"`
	Missing []string `json:"missing"`
}

// Lint reports every question which is not complete, with the fields it is missing.
func (b *Bank) Lint() []LintIssue {
	var out []LintIssue
	for _, bucket := range []string{cache.BucketEmpty, cache.BucketIncomplete} {
		entries, err := b.questions.Lookup(IndexCompleteness, bucket, cache.CopyShallow)
		if err != nil {
			continue
		}
		for _, e := range entries {
			out = append(out, LintIssue{
				ID:      e.Key,
				Bucket:  bucket,
				Missing: b.completeness.Missing(e.Data),
			})
		}
	}
	return out
}
