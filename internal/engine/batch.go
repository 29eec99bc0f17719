package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// DocumentPayload is the ingest wire format: one document's extraction as
// emitted by the upstream document-processing pipeline.
type DocumentPayload struct {
	DealID     string                 `json:"deal_id"`
	DocumentID string                 `json:"document_id"`
	Fields     []model.ExtractedField `json:"fields"`
}

// LoadPayload reads and validates one payload file.
func LoadPayload(path string) (*DocumentPayload, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: read payload %s", path)
	}
	var p DocumentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, eris.Wrapf(err, "engine: parse payload %s", path)
	}
	if p.DealID == "" || p.DocumentID == "" {
		return nil, eris.Errorf("engine: payload %s missing deal_id or document_id", path)
	}
	return &p, nil
}

// BatchResult reports the outcome of a batch run. Failed documents are
// collected rather than aborting the batch; one bad payload must not block
// the rest of a drop.
type BatchResult struct {
	Processed []*Report
	Failed    map[string]error
}

// ProcessBatch ingests every *.json payload under dir, maxConcurrent
// documents at a time. Documents of the same deal still serialize their
// conflict state through the store's dedupe keys, so concurrent workers
// stay safe.
func (e *Engine) ProcessBatch(ctx context.Context, dir string, maxConcurrent int) (*BatchResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: read batch dir %s", dir)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	result := &BatchResult{Failed: map[string]error{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			payload, err := LoadPayload(path)
			if err != nil {
				mu.Lock()
				result.Failed[path] = err
				mu.Unlock()
				return nil
			}
			report, err := e.ProcessDocument(gctx, payload.DealID, payload.DocumentID, payload.Fields)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[path] = err
				return nil
			}
			result.Processed = append(result.Processed, report)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, eris.Wrap(err, "engine: batch")
	}

	zap.L().Info("batch complete",
		zap.String("dir", dir),
		zap.Int("processed", len(result.Processed)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}
