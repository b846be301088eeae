package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrNoDirectory is returned when the ingestion directory does not exist.
var ErrNoDirectory = errors.New("ingest directory does not exist")

// DirResult summarizes a directory ingestion.
type DirResult struct {
	Result
	ProcessedFiles int `json:"processedFiles"`
	FailedFiles    int `json:"failedFiles"`
}

// IngestDirectory ingests every *.json file in dir in name order. A file that cannot be
// read or parsed is logged and counted, and the scan moves on.
func (e *Engine) IngestDirectory(ctx context.Context, dir string) (DirResult, error) {
	var res DirResult

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, fmt.Errorf("%w: %s", ErrNoDirectory, dir)
		}
		return res, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("%w: %s is not a directory", ErrNoDirectory, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var files []string
	for _, ent := range entries {
		if ent.IsDir() || !strings.EqualFold(filepath.Ext(ent.Name()), ".json") {
			continue
		}
		files = append(files, ent.Name())
	}
	sort.Strings(files)

	e.logger.Info("ingesting directory", zap.String("dir", dir), zap.Int("files", len(files)))
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.ProcessedFiles++
		path := filepath.Join(dir, name)

		raw, err := os.ReadFile(path)
		if err != nil {
			e.logger.Error("read payload file", zap.String("file", name), zap.Error(err))
			res.FailedFiles++
			continue
		}
		r, err := e.IngestPayload(ctx, raw)
		res.Add(r)
		if errors.Is(err, ErrMalformedPayload) {
			e.logger.Error("skip unparsable payload file", zap.String("file", name), zap.Error(err))
			res.FailedFiles++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("ingest %s: %w", name, err)
		}
		e.logger.Debug("payload file processed",
			zap.String("file", name), zap.Int("created", r.Created), zap.Int("status_updates", r.StatusUpdates))
	}

	e.logger.Info("directory ingested",
		zap.String("dir", dir),
		zap.Int("processed_files", res.ProcessedFiles),
		zap.Int("created", res.Created),
		zap.Int("status_updates", res.StatusUpdates),
		zap.Int("failed", res.Failed+res.FailedFiles))
	return res, nil
}
