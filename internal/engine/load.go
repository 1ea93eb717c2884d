package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/TestFlowLabs/testlink-sub002/internal/discover"
	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
	"github.com/TestFlowLabs/testlink-sub002/internal/parse"
)

func filterBySize(root string, files []discover.FileEntry, maxSize int, logger *slog.Logger) []discover.FileEntry {
	if maxSize <= 0 {
		return files
	}
	var kept []discover.FileEntry
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(root, filepath.FromSlash(f.Path)))
		if err != nil {
			kept = append(kept, f) // keep if can't stat
			continue
		}
		if fi.Size() > int64(maxSize) {
			logger.Warn("skipped large file", "path", f.Path, "limit", maxSize)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// parseFilesConcurrent scans files on a worker pool and returns the results in
// input order. Files that cannot be read or parsed are reported and skipped.
func (e *Engine) parseFilesConcurrent(ctx context.Context, files []discover.FileEntry) ([]*parse.File, []error) {
	if len(files) == 0 {
		return nil, nil
	}

	type result struct {
		index int
		file  *parse.File
		err   error
	}

	numWorkers := e.workers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make(chan result, len(files))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// tree-sitter parsers are not goroutine-safe; one per worker.
			parser := parse.NewParser(e.cfg.Attributes)

			for idx := range work {
				if ctx.Err() != nil {
					continue
				}
				f := files[idx]
				src, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(f.Path)))
				if err != nil {
					results <- result{index: idx, err: readError(f.Path, err)}
					continue
				}
				parsed, err := e.parseSource(parser, f.Path, src, f.Side)
				results <- result{index: idx, file: parsed, err: err}
			}
		}()
	}

	for i := range files {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in original order
	indexed := make([]result, len(files))
	for r := range results {
		indexed[r.index] = r
	}

	var out []*parse.File
	var errs errors.Collector
	for _, r := range indexed {
		if r.err != nil {
			e.logger.Warn("skipped file", "error", r.err)
			errs.Add(r.err)
			continue
		}
		if r.file == nil {
			continue
		}
		if r.file.HasErrors {
			errs.Add(errors.New(errors.ParseFailure, "syntax errors; declarations may be incomplete").At(r.file.Path, 0))
		}
		out = append(out, r.file)
	}
	return out, errs.Errors()
}

// loadTargets parses the files of link targets declared outside the scanned
// directories, such as PSR-4 mapped library code, and registers their sites so
// that every later pass treats them like scanned files. Targets found in a
// located file are followed too. Targets the locator cannot resolve stay
// unregistered and surface as orphans.
func (e *Engine) loadTargets(p *Project, scanned []*parse.File) []*parse.File {
	parser := parse.NewParser(e.cfg.Attributes)
	tried := make(map[string]struct{})
	var located []*parse.File

	queue := append([]*parse.File(nil), scanned...)
	for i := 0; i < len(queue); i++ {
		for _, d := range queue[i].Declarations {
			if d.Placeholder != nil || d.Kind != model.KindLink {
				continue
			}
			class, side := d.Test.Class, model.TestSide
			if d.Side == model.TestSide {
				class, side = d.Unit.Class, model.ProductionSide
			}
			if _, ok := tried[class]; ok || p.declaresClass(class, side) {
				continue
			}
			tried[class] = struct{}{}

			rel, err := e.locator.Resolve(class)
			if err != nil {
				continue
			}
			if _, ok := p.parsed[rel]; ok {
				continue
			}
			if side == model.ProductionSide {
				side = e.sideOf(rel, model.ProductionSide)
			}
			src, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rel)))
			if err != nil {
				p.Errors = append(p.Errors, readError(rel, err))
				continue
			}
			f, err := e.parseSource(parser, rel, src, side)
			if err != nil {
				p.Errors = append(p.Errors, err)
				continue
			}
			e.logger.Debug("located link target", "class", class, "path", rel)
			p.parsed[rel] = f
			registerSites(p.Registry, f)
			located = append(located, f)
			queue = append(queue, f)
		}
	}
	return located
}

// declaresClass reports whether the registry already knows class on side.
func (p *Project) declaresClass(class string, side model.Side) bool {
	if side == model.ProductionSide {
		return p.Registry.HasCodeUnit(model.CodeUnitRef{Class: class})
	}
	return p.Registry.HasTest(model.TestRef{Class: class})
}
