// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge builds a private, in-memory retrieval index over one
// document's text. Each analysis run gets its own index; nothing is shared
// across runs or persisted to disk.
package knowledge

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/llm"
	"github.com/pdiddy/paper-analyst/internal/logging"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

// DefaultTopK is the number of passages returned when a caller passes a
// non-positive topK.
const DefaultTopK = 3

// Retriever answers natural-language queries with the most relevant passages.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]types.Passage, error)
}

// IndexingError reports a failure to build an index. Stage names the step
// that failed: "chunk", "embed", or "store".
type IndexingError struct {
	Stage string
	Err   error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("indexing failed (%s): %v", e.Stage, e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }

// Builder turns document text into a queryable Index.
type Builder struct {
	embedder  llm.Embedder
	cfg       types.KnowledgeBaseConfig
	batchSize int
	logger    *zap.Logger
}

// NewBuilder returns a Builder. A nil embedder selects lexical retrieval.
func NewBuilder(embedder llm.Embedder, cfg types.KnowledgeBaseConfig, batchSize int, logger *zap.Logger) *Builder {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = types.DefaultConfig().Knowledge.ChunkSize
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Builder{
		embedder:  embedder,
		cfg:       cfg,
		batchSize: batchSize,
		logger:    logging.OrNop(logger),
	}
}

// Stats summarizes an index.
type Stats struct {
	Chunks   int
	Sections int
	Vector   bool
	FullText bool
}

// Index is an immutable retrieval index over one document. It is safe for
// concurrent Retrieve calls. Close releases the backing database.
type Index struct {
	db       *sql.DB
	chunks   []storedChunk
	embedder llm.Embedder
	topK     int
	fts      bool
	logger   *zap.Logger
}

type storedChunk struct {
	id      int64
	section string
	page    int
	text    string
	vector  []float32
}

// Build chunks text, embeds the chunks when an embedder is configured, and
// loads them into a fresh in-memory database.
func (b *Builder) Build(ctx context.Context, text string) (*Index, error) {
	chunks := chunkDocument(text, b.cfg.ChunkSize, b.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, &IndexingError{Stage: "chunk", Err: fmt.Errorf("document has no text to index")}
	}

	var vectors [][]float32
	if b.embedder != nil {
		var err error
		vectors, err = b.embedAll(ctx, chunks)
		if err != nil {
			return nil, &IndexingError{Stage: "embed", Err: err}
		}
	}

	db, err := openMemoryDB()
	if err != nil {
		return nil, &IndexingError{Stage: "store", Err: err}
	}

	idx := &Index{
		db:       db,
		embedder: b.embedder,
		topK:     b.cfg.TopK,
		logger:   b.logger,
	}
	if err := idx.load(ctx, chunks, vectors); err != nil {
		db.Close()
		return nil, &IndexingError{Stage: "store", Err: err}
	}

	b.logger.Debug("knowledge base built",
		zap.Int("chunks", len(idx.chunks)),
		zap.Bool("vector", b.embedder != nil),
		zap.Bool("fts5", idx.fts),
	)
	return idx, nil
}

func (b *Builder) embedAll(ctx context.Context, chunks []chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += b.batchSize {
		end := min(start+b.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.text)
		}
		batch, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// openMemoryDB opens a uniquely named in-memory database. A single
// connection keeps the database alive for the life of the pool.
func openMemoryDB() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:kb-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func (idx *Index) load(ctx context.Context, chunks []chunk, vectors [][]float32) error {
	if _, err := idx.db.ExecContext(ctx, `CREATE TABLE chunks (
		id INTEGER PRIMARY KEY,
		section TEXT,
		page INTEGER,
		content TEXT NOT NULL,
		embedding BLOB
	)`); err != nil {
		return fmt.Errorf("creating chunks table: %w", err)
	}

	// FTS5 is a compile-time option of the sqlite driver. Without it,
	// lexical retrieval scores terms in Go.
	if _, err := idx.db.ExecContext(ctx,
		`CREATE VIRTUAL TABLE chunks_fts USING fts5(content, content=chunks, content_rowid=id)`,
	); err == nil {
		idx.fts = true
	} else {
		idx.logger.Debug("fts5 unavailable, using term scoring", zap.Error(err))
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for i, c := range chunks {
		var blob []byte
		if vectors != nil {
			blob = encodeVector(vectors[i])
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (section, page, content, embedding) VALUES (?, ?, ?, ?)`,
			c.section, c.page, c.text, blob,
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", i, err)
		}
		if idx.fts {
			id, _ := res.LastInsertId()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chunks_fts (rowid, content) VALUES (?, ?)`, id, c.text,
			); err != nil {
				return fmt.Errorf("indexing chunk %d: %w", i, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx, `SELECT id, section, page, content, embedding FROM chunks ORDER BY id`)
	if err != nil {
		return fmt.Errorf("reading chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sc      storedChunk
			section sql.NullString
			blob    []byte
		)
		if err := rows.Scan(&sc.id, &section, &sc.page, &sc.text, &blob); err != nil {
			return fmt.Errorf("scanning chunk: %w", err)
		}
		sc.section = section.String
		if len(blob) > 0 {
			if sc.vector, err = decodeVector(blob); err != nil {
				return fmt.Errorf("decoding chunk %d: %w", sc.id, err)
			}
		}
		idx.chunks = append(idx.chunks, sc)
	}
	return rows.Err()
}

// Close releases the backing database.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Stats reports the index size and the retrieval modes in use.
func (idx *Index) Stats() Stats {
	sections := make(map[string]struct{})
	for _, c := range idx.chunks {
		sections[c.section] = struct{}{}
	}
	return Stats{
		Chunks:   len(idx.chunks),
		Sections: len(sections),
		Vector:   idx.embedder != nil,
		FullText: idx.fts,
	}
}

// Retrieve returns up to topK passages ordered by descending relevance.
// A non-positive topK uses the index default.
func (idx *Index) Retrieve(ctx context.Context, query string, topK int) ([]types.Passage, error) {
	if topK <= 0 {
		topK = idx.topK
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	var (
		passages []types.Passage
		err      error
	)
	switch {
	case idx.embedder != nil:
		passages, err = idx.retrieveVector(ctx, query, topK)
	case idx.fts:
		passages, err = idx.retrieveFTS(ctx, query, topK)
	default:
		passages = idx.retrieveTerms(query, topK)
	}
	if err != nil {
		return nil, err
	}

	idx.logger.Debug("retrieved passages",
		zap.String("query", logging.Truncate(query, 80)),
		zap.Int("results", len(passages)),
	)
	return passages, nil
}

func (idx *Index) retrieveVector(ctx context.Context, query string, topK int) ([]types.Passage, error) {
	vecs, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vecs))
	}

	scored := make([]scoredChunk, 0, len(idx.chunks))
	for i := range idx.chunks {
		scored = append(scored, scoredChunk{
			chunk: &idx.chunks[i],
			score: CosineSimilarity(vecs[0], idx.chunks[i].vector),
		})
	}
	return topPassages(scored, topK), nil
}

func (idx *Index) retrieveFTS(ctx context.Context, query string, topK int) ([]types.Passage, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := idx.db.QueryContext(ctx,
		`SELECT rowid, bm25(chunks_fts) FROM chunks_fts WHERE chunks_fts MATCH ? ORDER BY bm25(chunks_fts) LIMIT ?`,
		match, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("querying full-text index: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*storedChunk, len(idx.chunks))
	for i := range idx.chunks {
		byID[idx.chunks[i].id] = &idx.chunks[i]
	}

	var passages []types.Passage
	for rows.Next() {
		var (
			id   int64
			rank float64
		)
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		c, ok := byID[id]
		if !ok {
			continue
		}
		// bm25 is lower-is-better; negate so Score is higher-is-better.
		passages = append(passages, c.passage(-rank))
	}
	return passages, rows.Err()
}

func (idx *Index) retrieveTerms(query string, topK int) []types.Passage {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	var scored []scoredChunk
	for i := range idx.chunks {
		words := tokenize(idx.chunks[i].text)
		counts := make(map[string]int, len(words))
		for _, w := range words {
			counts[w]++
		}
		var score float64
		for _, t := range terms {
			if n := counts[t]; n > 0 {
				score += 1 + math.Log(float64(n))
			}
		}
		if score > 0 {
			scored = append(scored, scoredChunk{chunk: &idx.chunks[i], score: score})
		}
	}
	return topPassages(scored, topK)
}

type scoredChunk struct {
	chunk *storedChunk
	score float64
}

func (c *storedChunk) passage(score float64) types.Passage {
	return types.Passage{
		ChunkID: int(c.id - 1),
		Section: c.section,
		Page:    c.page,
		Text:    c.text,
		Score:   score,
	}
}

// topPassages sorts by score descending, ties broken by document order.
func topPassages(scored []scoredChunk, topK int) []types.Passage {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].chunk.id < scored[j].chunk.id
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	passages := make([]types.Passage, 0, len(scored))
	for _, s := range scored {
		passages = append(passages, s.chunk.passage(s.score))
	}
	return passages
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(s string) []string {
	words := tokenRe.FindAllString(strings.ToLower(s), -1)
	out := words[:0]
	for _, w := range words {
		if len(w) > 1 && !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "and": true, "of": true, "to": true, "in": true, "is": true,
	"a": true, "for": true, "on": true, "with": true, "what": true, "how": true,
	"are": true, "was": true, "were": true, "this": true, "that": true, "by": true,
	"an": true, "as": true, "does": true, "do": true, "it": true, "its": true,
}

// ftsQuery turns free text into an FTS5 OR-query of quoted terms so that
// punctuation in the question cannot break MATCH syntax.
func ftsQuery(query string) string {
	terms := tokenize(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func encodeVector(v []float32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return v, nil
}
