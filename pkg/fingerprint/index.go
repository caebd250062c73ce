// Package fingerprint computes and stores similarity embeddings for skill
// task descriptions. The index backs near-duplicate detection during skill
// creation: two descriptions whose embedding cosine similarity exceeds the
// configured threshold are considered the same capability.
package fingerprint

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/autoskill-ai/autoskill/pkg/logger"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

// Embedder turns text into a fixed-dimensionality vector. The generation
// backend satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

const indexFileName = "fingerprints.json"

var (
	punctRe      = regexp.MustCompile(`[\W_]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Index is the long-lived fingerprint store. Vectors live in memory and are
// mirrored to a JSON file next to the skills directory.
type Index struct {
	mu       sync.RWMutex
	path     string
	embedder Embedder
	topK     int
	entries  map[string]*skilltypes.Fingerprint
}

// NewIndex opens (or creates) a fingerprint index under dir. An existing
// index file is loaded; a corrupt one is discarded and rebuilt over time as
// skills are re-registered.
func NewIndex(dir string, embedder Embedder, topK int) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create fingerprint directory")
	}
	if topK <= 0 {
		topK = 5
	}

	idx := &Index{
		path:     filepath.Join(dir, indexFileName),
		embedder: embedder,
		topK:     topK,
		entries:  make(map[string]*skilltypes.Fingerprint),
	}

	data, err := os.ReadFile(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, errors.Wrap(err, "failed to read fingerprint index")
	}
	if err := json.Unmarshal(data, &idx.entries); err != nil {
		logger.L.WithError(err).WithField("path", idx.path).Warn("discarding corrupt fingerprint index")
		idx.entries = make(map[string]*skilltypes.Fingerprint)
	}
	return idx, nil
}

// Add computes and stores the fingerprint for a skill description. Embedding
// failures surface to the caller; nothing is stored on error.
func (i *Index) Add(ctx context.Context, name, description string) error {
	vector, err := i.embedder.Embed(ctx, preprocess(description))
	if err != nil {
		return errors.Wrapf(err, "failed to embed description for skill %s", name)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[name] = &skilltypes.Fingerprint{
		SkillName:   name,
		Description: description,
		Vector:      vector,
		CreatedAt:   time.Now(),
	}
	return i.persistLocked()
}

// Remove deletes a skill's fingerprint. Removing an absent name is a no-op.
func (i *Index) Remove(name string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.entries[name]; !ok {
		return nil
	}
	delete(i.entries, name)
	return i.persistLocked()
}

// Get returns the stored fingerprint for a skill, or nil.
func (i *Index) Get(name string) *skilltypes.Fingerprint {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.entries[name]
}

// Names lists all fingerprinted skills.
func (i *Index) Names() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	names := make([]string, 0, len(i.entries))
	for name := range i.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Similar returns up to topK skills ordered by descending cosine similarity
// to the given description. The result is recomputed on every call.
func (i *Index) Similar(ctx context.Context, description string) ([]skilltypes.Match, error) {
	query, err := i.embedder.Embed(ctx, preprocess(description))
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query description")
	}

	i.mu.RLock()
	matches := make([]skilltypes.Match, 0, len(i.entries))
	for name, fp := range i.entries {
		matches = append(matches, skilltypes.Match{
			SkillName: name,
			Score:     Cosine(query, fp.Vector),
		})
	}
	i.mu.RUnlock()

	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Score != matches[b].Score {
			return matches[a].Score > matches[b].Score
		}
		return matches[a].SkillName < matches[b].SkillName
	})
	if len(matches) > i.topK {
		matches = matches[:i.topK]
	}
	return matches, nil
}

// persistLocked writes the index atomically. Callers must hold i.mu.
func (i *Index) persistLocked() error {
	data, err := json.MarshalIndent(i.entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal fingerprint index")
	}
	tempPath := i.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write fingerprint index")
	}
	if err := os.Rename(tempPath, i.path); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, "failed to replace fingerprint index")
	}
	return nil
}

// Cosine computes the cosine similarity of two vectors. Mismatched or empty
// vectors score zero.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// preprocess normalizes a description before embedding: lowercase, strip
// punctuation, collapse whitespace.
func preprocess(text string) string {
	text = punctRe.ReplaceAllString(strings.ToLower(text), " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
