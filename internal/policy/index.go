package policy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/fingerprint"
)

// DocumentInfo summarises a document held by a snapshot.
type DocumentInfo struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Category core.Intent `json:"category,omitempty"`
	Chunks   int         `json:"chunks"`
}

// Snapshot is an immutable, fully built version of the index. Once published
// it is never modified.
type Snapshot struct {
	Version      uint64             `json:"version"`
	BuiltAt      time.Time          `json:"built_at"`
	SourceDigest string             `json:"source_digest"`
	Settings     string             `json:"settings"`
	Dimension    int                `json:"dimension"`
	Documents    []DocumentInfo     `json:"documents"`
	Chunks       []core.PolicyChunk `json:"chunks"`
	norms        []float64
	categories   map[core.Intent]int
}

func (s *Snapshot) prepare() {
	s.norms = make([]float64, len(s.Chunks))
	s.categories = make(map[core.Intent]int)
	for i, c := range s.Chunks {
		s.norms[i] = norm(c.Vector)
		if c.Category != "" {
			s.categories[c.Category]++
		}
	}
}

// Options configures an Index.
type Options struct {
	Dir              string
	ChunkSize        int
	ChunkOverlap     int
	BuildConcurrency int
	EmbedTimeout     time.Duration
	SnapshotPath     string
	// EmbedderID names the embedding provider and model. Persisted snapshots
	// built under a different id or chunking are rebuilt.
	EmbedderID string
}

// Index is the process-wide semantic index. Queries read whichever snapshot
// is current when they start; builds assemble a new snapshot off to the side
// and publish it with a single pointer swap.
type Index struct {
	embedder core.Embedder
	chunker  *Chunker
	opts     Options
	store    *SnapshotStore
	logger   *zap.Logger

	current atomic.Pointer[Snapshot]
	buildMu sync.Mutex
	onBuild func(*Snapshot)
}

// NewIndex creates an index with an empty snapshot.
func NewIndex(embedder core.Embedder, opts Options, logger *zap.Logger) (*Index, error) {
	chunker, err := NewChunker(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if opts.BuildConcurrency <= 0 {
		opts.BuildConcurrency = 1
	}
	ix := &Index{
		embedder: embedder,
		chunker:  chunker,
		opts:     opts,
		logger:   logger,
	}
	if opts.SnapshotPath != "" {
		ix.store = NewSnapshotStore(opts.SnapshotPath)
	}
	empty := &Snapshot{}
	empty.prepare()
	ix.current.Store(empty)
	return ix, nil
}

// OnBuild registers a hook called after each successful publish.
func (ix *Index) OnBuild(fn func(*Snapshot)) {
	ix.onBuild = fn
}

// Current returns the snapshot queries are served from.
func (ix *Index) Current() *Snapshot {
	return ix.current.Load()
}

// Warm loads a persisted snapshot when it matches the corpus on disk and the
// current embedder and chunking, and builds from the corpus otherwise.
func (ix *Index) Warm(ctx context.Context) error {
	if ix.store != nil {
		docs, err := LoadCorpus(ix.opts.Dir)
		if err == nil {
			snap, err := ix.store.Load()
			switch {
			case err != nil:
				ix.logger.Info("No usable persisted policy snapshot", zap.Error(err))
			case snap.SourceDigest != CorpusDigest(docs):
				ix.logger.Info("Persisted policy snapshot is stale, rebuilding")
			case snap.Settings != ix.settings():
				ix.logger.Info("Persisted policy snapshot was built with other embedding settings, rebuilding")
			case !ix.dimensionMatches(snap):
				ix.logger.Info("Persisted policy snapshot has a different embedding dimension, rebuilding",
					zap.Int("snapshot_dimension", snap.Dimension))
			default:
				ix.buildMu.Lock()
				ix.publish(snap)
				ix.buildMu.Unlock()
				return nil
			}
		}
	}
	return ix.Refresh(ctx)
}

func (ix *Index) settings() string {
	return fingerprint.Combine(ix.opts.EmbedderID, strconv.Itoa(ix.opts.ChunkSize), strconv.Itoa(ix.opts.ChunkOverlap))
}

// dimensionMatches is true unless the embedder reports a dimension that
// differs from snap's.
func (ix *Index) dimensionMatches(snap *Snapshot) bool {
	d, ok := ix.embedder.(interface{ Dimension() int })
	if !ok || d.Dimension() <= 0 || len(snap.Chunks) == 0 {
		return true
	}
	return d.Dimension() == snap.Dimension
}

// Refresh rebuilds the index from the policy directory. On failure the
// previous snapshot stays in force and an index_build_failed error is
// returned.
func (ix *Index) Refresh(ctx context.Context) error {
	docs, err := LoadCorpus(ix.opts.Dir)
	if err != nil {
		return core.NewStageError(core.StageIndex, core.KindIndexBuildFailed, err)
	}
	_, err = ix.Build(ctx, docs)
	return err
}

// Build chunks and embeds docs, then publishes the result. Concurrent calls
// are serialised; queries are never blocked.
func (ix *Index) Build(ctx context.Context, docs []Document) (*Snapshot, error) {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	start := time.Now()
	snap, err := ix.assemble(ctx, docs)
	if err != nil {
		ix.logger.Error("Policy index build failed, keeping previous snapshot",
			zap.Uint64("version", ix.Current().Version),
			zap.Error(err))
		return nil, core.NewStageError(core.StageIndex, core.KindIndexBuildFailed, err)
	}
	ix.publish(snap)

	if ix.store != nil {
		if err := ix.store.Save(snap); err != nil {
			ix.logger.Warn("Failed to persist policy snapshot", zap.Error(err))
		}
	}
	ix.logger.Info("Policy index built",
		zap.Uint64("version", snap.Version),
		zap.Int("documents", len(snap.Documents)),
		zap.Int("chunks", len(snap.Chunks)),
		zap.Duration("duration", time.Since(start)))
	return snap, nil
}

func (ix *Index) assemble(ctx context.Context, docs []Document) (*Snapshot, error) {
	snap := &Snapshot{
		BuiltAt:      time.Now(),
		SourceDigest: CorpusDigest(docs),
		Settings:     ix.settings(),
		Documents:    make([]DocumentInfo, 0, len(docs)),
	}
	for _, doc := range docs {
		chunks, err := ix.chunker.Split(doc)
		if err != nil {
			return nil, err
		}
		snap.Documents = append(snap.Documents, DocumentInfo{
			ID:       doc.ID,
			Title:    doc.Title,
			Category: doc.Category,
			Chunks:   len(chunks),
		})
		snap.Chunks = append(snap.Chunks, chunks...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.BuildConcurrency)
	for i := range snap.Chunks {
		i := i
		g.Go(func() error {
			vector, err := ix.embed(gctx, snap.Chunks[i].Text)
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", snap.Chunks[i].ID, err)
			}
			snap.Chunks[i].Vector = vector
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, c := range snap.Chunks {
		if snap.Dimension == 0 {
			snap.Dimension = len(c.Vector)
		}
		if len(c.Vector) == 0 || len(c.Vector) != snap.Dimension {
			return nil, fmt.Errorf("chunk %s has embedding dimension %d, expected %d", c.ID, len(c.Vector), snap.Dimension)
		}
	}
	return snap, nil
}

// publish must be called with buildMu held.
func (ix *Index) publish(snap *Snapshot) {
	snap.Version = ix.Current().Version + 1
	snap.prepare()
	ix.current.Store(snap)
	if ix.onBuild != nil {
		ix.onBuild(snap)
	}
}

func (ix *Index) embed(ctx context.Context, text string) ([]float32, error) {
	if ix.opts.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.opts.EmbedTimeout)
		defer cancel()
	}
	return ix.embedder.Embed(ctx, text)
}

// TopK returns the k chunks most similar to query, best first. When hint is
// a category that tags at least one chunk, the search is limited to that
// category and untagged chunks; otherwise the whole corpus is searched.
// Equal scores keep corpus order. An empty corpus or k <= 0 yields an empty
// result.
func (ix *Index) TopK(ctx context.Context, hint core.Intent, query string, k int) ([]core.ScoredChunk, error) {
	snap := ix.Current()
	if k <= 0 || len(snap.Chunks) == 0 {
		return []core.ScoredChunk{}, nil
	}

	qv, err := ix.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qv) != snap.Dimension {
		return nil, errors.New("query embedding dimension does not match the index")
	}
	return snap.search(hint, qv, k), nil
}

func (s *Snapshot) search(hint core.Intent, qv []float32, k int) []core.ScoredChunk {
	filter := hint != "" && s.categories[hint] > 0
	qn := norm(qv)

	scored := make([]core.ScoredChunk, 0, len(s.Chunks))
	for i, c := range s.Chunks {
		if filter && c.Category != "" && c.Category != hint {
			continue
		}
		score := 0.0
		if qn > 0 && s.norms[i] > 0 {
			score = dot(qv, c.Vector) / (qn * s.norms[i])
		}
		scored = append(scored, core.ScoredChunk{Chunk: c, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
