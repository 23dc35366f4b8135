// Package policy builds and queries the semantic index over the support
// policy corpus.
package policy

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/fingerprint"
)

var documentExtensions = map[string]bool{".md": true, ".markdown": true, ".txt": true}

// Document is one source file of the policy corpus.
type Document struct {
	// ID is the slash-separated path relative to the corpus root.
	ID       string
	Title    string
	Category core.Intent
	Text     string
}

// LoadCorpus reads every policy document under dir. A file named after an
// intent (billing.md) or living in a directory named after one
// (billing/refunds.md) is tagged with that intent; other files are untagged.
// Documents are returned in path order. A missing directory is an error, an
// empty one is not.
func LoadCorpus(dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("policy directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("policy directory %s is not a directory", dir)
	}

	var docs []Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !documentExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		id := filepath.ToSlash(rel)
		docs = append(docs, Document{
			ID:       id,
			Title:    titleFromPath(id),
			Category: categoryFromPath(id),
			Text:     string(raw),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load policy corpus: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// CorpusDigest fingerprints the corpus so a persisted snapshot can be matched
// against the files it was built from.
func CorpusDigest(docs []Document) string {
	parts := make([]string, 0, len(docs)*2)
	for _, d := range docs {
		parts = append(parts, d.ID, d.Text)
	}
	return fingerprint.Combine(parts...)
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func categoryFromPath(id string) core.Intent {
	segments := strings.Split(id, "/")
	if len(segments) > 1 {
		if in, ok := core.ParseIntent(segments[0]); ok {
			return in
		}
	}
	if in, ok := core.ParseIntent(stem(segments[len(segments)-1])); ok {
		return in
	}
	return ""
}

// titleFromPath turns "billing/refund_policy.md" into "Refund Policy".
func titleFromPath(id string) string {
	base := stem(filepath.Base(id))
	words := strings.FieldsFunc(base, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
