package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/normgraph/normgraph/internal/chunker"
	"github.com/normgraph/normgraph/internal/database"
	"github.com/normgraph/normgraph/internal/document"
	"github.com/normgraph/normgraph/internal/embedder"
	"github.com/normgraph/normgraph/internal/extract"
	"github.com/normgraph/normgraph/internal/graph"
	"github.com/normgraph/normgraph/internal/observability"
	"github.com/normgraph/normgraph/internal/types"
	"github.com/normgraph/normgraph/internal/vector"
)

// Ingester runs the full ingestion pipeline for one file:
// load, classify, chunk, extract, embed, store.
type Ingester struct {
	classifier *document.Classifier
	processor  chunker.Processor
	extractor  *extract.Extractor
	embedder   embedder.Embedder
	vectors    vector.Store
	graph      graph.Store
	sources    *database.SourceDAO
	keywords   *database.KeywordIndex
	logger     *observability.TracedLogger
}

// NewIngester wires an ingestion pipeline over already-connected
// stores. The extractor may be nil to disable the LLM passes entirely.
func NewIngester(
	classifier *document.Classifier,
	processor chunker.Processor,
	extractor *extract.Extractor,
	emb embedder.Embedder,
	vectors vector.Store,
	graphStore graph.Store,
	db *database.DB,
	logger *observability.TracedLogger,
) *Ingester {
	if logger == nil {
		logger = observability.NewTracedLogger(slog.NewTextHandler(io.Discard, nil), "ingester")
	}
	return &Ingester{
		classifier: classifier,
		processor:  processor,
		extractor:  extractor,
		embedder:   emb,
		vectors:    vectors,
		graph:      graphStore,
		sources:    database.NewSourceDAO(db),
		keywords:   database.NewKeywordIndex(db),
		logger:     logger,
	}
}

// Ingest runs the pipeline for one file path.
//
// The catalog record is written last: if any store write fails, the
// source stays absent (or stale) in the catalog and a retry redoes the
// whole source. Chunk IDs are deterministic, so redone vector writes
// overwrite rather than duplicate.
func (i *Ingester) Ingest(ctx context.Context, path string, opts IngestOptions) (*IngestResult, error) {
	started := time.Now()

	doc, err := document.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(doc.Text))
	hash := hex.EncodeToString(sum[:])

	existing, err := i.sources.Get(ctx, doc.Source)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.SourceHash == hash && !opts.Force {
		i.logger.Info(ctx, "source unchanged, skipping", "source", doc.Source)
		return &IngestResult{
			Source:   doc.Source,
			Skipped:  true,
			Duration: time.Since(started),
		}, nil
	}

	classification, err := i.classifier.Classify(ctx, doc)
	if err != nil {
		return nil, err
	}
	i.logger.Info(ctx, "document classified",
		"source", doc.Source,
		"type", classification.Type,
		"confidence", classification.Confidence,
		"method", classification.Method)

	profile := chunker.ProfileFor(classification.Type)
	if opts.ChunkSize > 0 {
		profile.ChunkSize = opts.ChunkSize
	}
	if opts.ChunkOverlap > 0 {
		profile.ChunkOverlap = opts.ChunkOverlap
	}
	chunks, err := i.processor.Chunk(doc.Text, profile)
	if err != nil {
		return nil, types.WrapError(types.CHUNK_PROCESS_FAILED, "chunking failed", err)
	}
	if len(chunks) == 0 {
		return nil, types.NewError(types.INGEST_FAILED, "document produced no chunks")
	}

	// Replacing an existing source clears its old entries first, so a
	// shrunk document does not leave orphan chunks behind.
	if existing != nil {
		if err := i.clearSource(ctx, doc.Source); err != nil {
			return nil, err
		}
	}

	var controls []extract.ControlItem
	var relationships []graph.Relationship
	if i.extractor != nil && !opts.SkipExtraction {
		controls, relationships = i.extractControls(ctx, doc.Source, chunks, string(classification.Type))
	}

	texts := make([]string, len(chunks))
	for idx, c := range chunks {
		texts[idx] = c.Text
	}
	embeddings, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, types.WrapError(types.EMBEDDING_FAILED, "chunk embedding failed", err)
	}

	records, entries := i.buildRecords(doc, classification.Type, chunks, embeddings)

	result := &IngestResult{
		Source:         doc.Source,
		Classification: classification,
		Chunks:         len(chunks),
		Controls:       len(controls),
		Relationships:  len(relationships),
	}

	// Vector, keyword, and graph writes are independent. The first
	// two are required; the graph write degrades to a warning so a
	// down Neo4j does not block ingestion.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := i.vectors.StoreBatch(gctx, records); err != nil {
			return types.WrapError(types.VECTOR_STORE_FAILED, "chunk storage failed", err)
		}
		return i.keywords.IndexChunksTx(gctx, entries)
	})
	g.Go(func() error {
		if err := i.writeGraph(gctx, doc, classification.Type, hash, controls, relationships); err != nil {
			i.logger.Warn(ctx, "graph write failed, source is searchable but not traversable",
				"source", doc.Source, "error", err)
			result.GraphDegraded = true
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := i.sources.Upsert(ctx, &database.SourceRecord{
		ID:           types.DeterministicID(doc.Source),
		Source:       doc.Source,
		SourceType:   string(doc.Format),
		SourceHash:   hash,
		DocumentType: string(classification.Type),
		ChunkCount:   len(chunks),
		ControlCount: len(controls),
		Metadata:     map[string]string{"title": doc.Title},
	}); err != nil {
		return nil, err
	}

	result.Duration = time.Since(started)
	i.logger.Info(ctx, "source ingested",
		"source", doc.Source,
		"chunks", result.Chunks,
		"controls", result.Controls,
		"relationships", result.Relationships,
		"duration", result.Duration)
	return result, nil
}

// extractControls runs the LLM extraction pass over every chunk and
// one discovery pass over the union. Extraction failures degrade to
// chunk-only ingestion rather than failing the run.
func (i *Ingester) extractControls(ctx context.Context, source string, chunks []chunker.Chunk, docType string) ([]extract.ControlItem, []graph.Relationship) {
	seen := make(map[string]bool)
	var controls []extract.ControlItem
	for _, c := range chunks {
		// Prose chunks with no control identifier rarely yield
		// anything; skip the LLM round trip for them.
		if len(c.ControlIDs) == 0 {
			continue
		}
		items, err := i.extractor.ExtractControls(ctx, c.Text, docType)
		if err != nil {
			i.logger.Warn(ctx, "control extraction failed for chunk",
				"source", source, "chunk", c.Index, "error", err)
			continue
		}
		for _, item := range items {
			if !seen[item.ID] {
				seen[item.ID] = true
				controls = append(controls, item)
			}
		}
	}

	relationships, err := i.extractor.DiscoverRelationships(ctx, controls)
	if err != nil {
		i.logger.Warn(ctx, "relationship discovery failed",
			"source", source, "error", err)
		relationships = nil
	}
	return controls, relationships
}

// buildRecords turns chunks and their embeddings into vector records
// and keyword index entries.
func (i *Ingester) buildRecords(doc *document.Document, docType document.Type, chunks []chunker.Chunk, embeddings [][]float64) ([]vector.Record, []database.KeywordEntry) {
	records := make([]vector.Record, len(chunks))
	entries := make([]database.KeywordEntry, len(chunks))
	for idx, c := range chunks {
		id := ChunkID(doc.Source, c.Index, c.Text)
		metadata := map[string]any{
			"source":        doc.Source,
			"document_type": string(docType),
			"chunk_index":   c.Index,
		}
		if c.Section != "" {
			metadata["section"] = c.Section
		}
		if len(c.ControlIDs) > 0 {
			ids := make([]any, len(c.ControlIDs))
			for j, cid := range c.ControlIDs {
				ids[j] = cid
			}
			metadata["control_ids"] = ids
		}
		if c.HasCode {
			metadata["has_code"] = true
			if c.Language != "" {
				metadata["language"] = c.Language
			}
		}
		records[idx] = *vector.NewRecord(id.String(), c.Text, embeddings[idx], metadata)
		entries[idx] = database.KeywordEntry{
			ChunkID: id,
			Source:  doc.Source,
			Section: c.Section,
			Content: c.Text,
		}
	}
	return records, entries
}

// writeGraph upserts the document node, its controls, and discovered
// relationships.
func (i *Ingester) writeGraph(ctx context.Context, doc *document.Document, docType document.Type, hash string, controls []extract.ControlItem, relationships []graph.Relationship) error {
	if err := i.graph.UpsertDocument(ctx, graph.Document{
		Source:     doc.Source,
		Title:      doc.Title,
		Type:       string(docType),
		Hash:       hash,
		IngestedAt: time.Now(),
	}); err != nil {
		return err
	}
	if len(controls) == 0 {
		return nil
	}

	nodes := make([]graph.Control, len(controls))
	for idx, c := range controls {
		nodes[idx] = graph.Control{
			ID:          c.ID,
			Title:       c.Title,
			Description: c.Description,
			Framework:   string(docType),
			Domain:      c.Domain,
			Level:       c.Level,
			Source:      doc.Source,
		}
	}
	if err := i.graph.UpsertControls(ctx, nodes); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := i.graph.LinkControlToDocument(ctx, n.ID, doc.Source); err != nil {
			return err
		}
	}
	for _, rel := range relationships {
		rel.Source = doc.Source
		if err := i.graph.CreateRelationship(ctx, rel); err != nil {
			return err
		}
	}
	return nil
}

// clearSource removes a source's previous entries from every store
// ahead of re-ingestion.
func (i *Ingester) clearSource(ctx context.Context, source string) error {
	if err := i.vectors.DeleteBySource(ctx, source); err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED,
			"failed to clear previous embeddings", err)
	}
	if err := i.keywords.DeleteSource(ctx, source); err != nil {
		return err
	}
	if err := i.graph.DeleteSource(ctx, source); err != nil {
		// Same degradation rule as the write path.
		i.logger.Warn(ctx, "failed to clear source from graph", "source", source, "error", err)
	}
	return nil
}
