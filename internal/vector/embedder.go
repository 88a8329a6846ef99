package vector

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/symbols"
)

// DefaultDimensions is the vector size used when none is configured.
const DefaultDimensions = 256

const upsertBatch = 256

// pointNamespace seeds the deterministic point ids, so re-indexing a symbol
// overwrites its previous point.
var pointNamespace = uuid.MustParse("6f1c2a4e-7d0b-5c3e-9a8f-2b4d6e8f0a1c")

// HashEmbedder maps text to a fixed-size vector by hashing identifier
// tokens into buckets. Similar names share tokens and so share buckets.
type HashEmbedder struct {
	Dimensions int
}

// Embed returns an L2-normalized vector. Empty text yields the zero vector.
func (e HashEmbedder) Embed(text string) []float32 {
	dims := e.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}
	vec := make([]float32, dims)
	for _, tok := range Tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		vec[sum%uint64(dims)] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// Tokenize splits dotted, snake_case and camelCase identifiers into
// lower-case words.
func Tokenize(text string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(text)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && len(cur) > 0 && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return tokens
}

// PointID is the stable vector id for a fully qualified name.
func PointID(fqn string) string {
	return uuid.NewSHA1(pointNamespace, []byte(fqn)).String()
}

// Indexer embeds symbol-table entries and stores them in a Repository.
type Indexer struct {
	embedder HashEmbedder
	repo     Repository
}

// NewIndexer creates an Indexer.
func NewIndexer(embedder HashEmbedder, repo Repository) *Indexer {
	return &Indexer{embedder: embedder, repo: repo}
}

// IndexSymbols upserts every entry of table. When doc is non-nil, inferred
// types of the defining nodes are added to the indexed text and payload.
func (x *Indexer) IndexSymbols(ctx context.Context, buildID string, table *symbols.Table, doc *graph.Document) (int, error) {
	syms := table.Symbols()
	batch := make([]Document, 0, upsertBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := x.repo.Upsert(ctx, batch); err != nil {
			return fmt.Errorf("upserting symbols: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for _, s := range syms {
		content := s.FQN
		meta := map[string]string{
			"fqn":      s.FQN,
			"kind":     string(s.Kind),
			"file":     s.File,
			"node":     string(s.Node),
			"build_id": buildID,
		}
		if doc != nil {
			if n, ok := doc.Node(s.Node); ok && n.InferredType != "" {
				content += " " + n.InferredType
				meta["type"] = n.InferredType
			}
		}
		batch = append(batch, Document{
			ID:       PointID(s.FQN),
			Content:  content,
			Vector:   x.embedder.Embed(content),
			Metadata: meta,
		})
		if len(batch) == upsertBatch {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return len(syms), nil
}

// Search embeds query and returns the topK closest symbols.
func (x *Indexer) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	return x.repo.Search(ctx, x.embedder.Embed(query), topK)
}
