package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/shoel/internal/models"
)

const (
	fieldContent  = "content"
	fieldDocument = "document_id"
	fieldPage     = "page_number"

	deleteBatchSize = 1000

	// maxFuzzyExpansions caps the indexed terms one query term may expand to.
	maxFuzzyExpansions = 50
)

// chunkDoc is the indexed representation of a chunk.
type chunkDoc struct {
	Content    string  `json:"content"`
	DocumentID string  `json:"document_id"`
	PageNumber float64 `json:"page_number"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps
// the index in memory only.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// standard analyzer: unicode word segmentation and lowercasing, no stemming,
	// so Hebrew tokens are indexed as they appear after normalization
	textFieldMapping.Analyzer = standard.Name
	textFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(fieldContent, textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt(fieldDocument, keywordFieldMapping)
	numericFieldMapping := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt(fieldPage, numericFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexChunks indexes chunks in one batch, keyed by chunk id.
func (b *BleveIndex) IndexChunks(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, c := range chunks {
		doc := chunkDoc{Content: c.Text, DocumentID: c.DocumentID, PageNumber: float64(c.PageNumber)}
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to write Bleve batch: %w", err)
	}
	return nil
}

// Search runs a match query over chunk content and returns up to limit results.
// With a phrase boost, chunks that also match the query as a phrase are multiplied by it.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []*KeywordResult{}, nil
	}
	phraseBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 1
	if opts != nil {
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var q blevequery.Query
	if fuzzyEnabled {
		fq, err := b.buildFuzzyQuery(query, fuzziness)
		if err != nil {
			return nil, err
		}
		q = fq
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(fieldContent)
		q = mq
	}

	reqSize := limit
	if phraseBoost > 1 && reqSize < 50 {
		reqSize = 50
	}
	req := bleve.NewSearchRequest(q)
	req.Size = reqSize
	req.Fields = []string{fieldDocument}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]*KeywordResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		docID, _ := hit.Fields[fieldDocument].(string)
		out = append(out, &KeywordResult{ID: hit.ID, DocumentID: docID, Score: hit.Score})
	}

	if phraseBoost > 1 && len(tokenizeQuery(query)) > 1 {
		phrases := b.findPhraseMatches(ctx, query, reqSize)
		for _, r := range out {
			if phrases[r.ID] {
				r.Score *= phraseBoost
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery analyzes queryStr the way content is indexed and expands
// every term to the indexed terms within its rune edit distance. Bleve's own
// fuzzy query counts bytes on the in-memory backend, where one Hebrew letter
// costs two edits.
func (b *BleveIndex) buildFuzzyQuery(queryStr string, fuzziness int) (blevequery.Query, error) {
	terms := b.analyzeTerms(queryStr)
	if len(terms) == 0 {
		return bleve.NewMatchNoneQuery(), nil
	}
	indexed, err := b.contentTerms()
	if err != nil {
		return nil, err
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		queries = append(queries, termQuery(term, 1))
		limit := termFuzziness(term, fuzziness)
		if limit == 0 {
			continue
		}
		expanded := 0
		for _, cand := range indexed {
			if expanded == maxFuzzyExpansions {
				break
			}
			if d := editDistance(term, cand, limit); d > 0 && d <= limit {
				queries = append(queries, termQuery(cand, 1/float64(d+1)))
				expanded++
			}
		}
	}
	if len(queries) == 1 {
		return queries[0], nil
	}
	return bleve.NewDisjunctionQuery(queries...), nil
}

func termQuery(term string, boost float64) blevequery.Query {
	tq := bleve.NewTermQuery(term)
	tq.SetField(fieldContent)
	tq.SetBoost(boost)
	return tq
}

// analyzeTerms runs the content analyzer over query and returns distinct terms.
func (b *BleveIndex) analyzeTerms(query string) []string {
	an := b.index.Mapping().AnalyzerNamed(standard.Name)
	if an == nil {
		return tokenizeQuery(query)
	}
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range an.Analyze([]byte(query)) {
		t := string(tok.Term)
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return terms
}

// contentTerms lists the terms of the content field dictionary.
func (b *BleveIndex) contentTerms() ([]string, error) {
	dict, err := b.index.FieldDict(fieldContent)
	if err != nil {
		return nil, fmt.Errorf("failed to read term dictionary: %w", err)
	}
	defer dict.Close()
	var terms []string
	entry, err := dict.Next()
	for err == nil && entry != nil {
		terms = append(terms, entry.Term)
		entry, err = dict.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read term dictionary: %w", err)
	}
	return terms, nil
}

// findPhraseMatches returns the chunk ids whose content contains the query as a phrase.
func (b *BleveIndex) findPhraseMatches(ctx context.Context, query string, reqSize int) map[string]bool {
	matches := make(map[string]bool)
	pq := bleve.NewMatchPhraseQuery(query)
	pq.SetField(fieldContent)
	req := bleve.NewSearchRequest(pq)
	req.Size = reqSize
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return matches
	}
	for _, hit := range results.Hits {
		matches[hit.ID] = true
	}
	return matches
}

// DeleteDocument removes all chunks indexed under docID.
func (b *BleveIndex) DeleteDocument(ctx context.Context, docID string) (int, error) {
	removed := 0
	for {
		tq := bleve.NewTermQuery(docID)
		tq.SetField(fieldDocument)
		req := bleve.NewSearchRequest(tq)
		req.Size = deleteBatchSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return removed, fmt.Errorf("failed to find chunks of %s: %w", docID, err)
		}
		if len(results.Hits) == 0 {
			return removed, nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return removed, fmt.Errorf("failed to delete chunks of %s: %w", docID, err)
		}
		removed += len(results.Hits)
	}
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
