// Package engine wires scanning, planning and mutation into the operations
// exposed by the command line: report, validate, sync and pair.
package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/TestFlowLabs/testlink-sub002/internal/config"
	"github.com/TestFlowLabs/testlink-sub002/internal/discover"
	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/locate"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
	"github.com/TestFlowLabs/testlink-sub002/internal/parse"
	"github.com/TestFlowLabs/testlink-sub002/internal/registry"
)

const parsedCacheSize = 4096

// Engine runs operations against one project root.
type Engine struct {
	root    string
	cfg     *config.Config
	logger  *slog.Logger
	locator *locate.Locator
	parsed  *lru.Cache[string, cachedFile]
	workers int
}

type cachedFile struct {
	sum  [sha256.Size]byte
	file *parse.File
}

// New creates an Engine for the project at root.
func New(root string, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", abs)
	}

	loc, err := locate.New(abs, cfg.Namespaces, logger)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, cachedFile](parsedCacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		root:    abs,
		cfg:     cfg,
		logger:  logger,
		locator: loc,
		parsed:  cache,
	}, nil
}

// Root returns the absolute project root.
func (e *Engine) Root() string { return e.root }

// Project is the scanned state of the project for one operation.
type Project struct {
	Files    []discover.FileEntry
	Registry *registry.Registry
	// Errors holds recoverable scan problems such as unparseable files.
	Errors []error

	parsed map[string]*parse.File
}

// Load discovers and parses every PHP file, then registers sites and
// declarations in discovery order.
func (e *Engine) Load(ctx context.Context) (*Project, error) {
	files, err := discover.Files(e.root, discover.Options{
		Production: e.cfg.Production,
		Tests:      e.cfg.Tests,
		Exclude:    e.cfg.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	files = filterBySize(e.root, files, e.cfg.MaxFileSize, e.logger)

	scanned, errs := e.parseFilesConcurrent(ctx, files)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &Project{
		Files:    files,
		Registry: registry.New(),
		Errors:   errs,
		parsed:   make(map[string]*parse.File, len(scanned)),
	}
	for _, f := range scanned {
		p.parsed[f.Path] = f
		registerSites(p.Registry, f)
	}
	all := append(scanned, e.loadTargets(p, scanned)...)
	for _, f := range all {
		registerDeclarations(p.Registry, f)
	}

	e.logger.Info("loaded project",
		"files", len(files),
		"units", len(p.Registry.Units()),
		"tests", len(p.Registry.Tests()),
		"declarations", len(p.Registry.Declarations()),
		"placeholders", len(p.Registry.Placeholders()),
		"errors", len(errs))
	return p, nil
}

func registerSites(reg *registry.Registry, f *parse.File) {
	if f.Side == model.ProductionSide {
		for _, m := range f.Members {
			if !m.IsTest {
				reg.AddUnitSite(m.Unit, f.Path)
			}
		}
		return
	}
	if f.Style == model.StyleChain {
		reg.AddTestSite(model.TestRef{Class: f.Class}, f.Path, model.StyleChain)
		for _, c := range f.Cases {
			reg.AddTestSite(c.Ref, f.Path, model.StyleChain)
		}
		return
	}
	for _, m := range f.Members {
		if m.IsTest {
			reg.AddTestSite(m.Test, f.Path, model.StyleAttribute)
		}
	}
}

// registerDeclarations records f's declarations. An @see pointing at a class
// the project does not declare on the opposite side is ordinary documentation
// and is not tracked.
func registerDeclarations(reg *registry.Registry, f *parse.File) {
	for _, d := range f.Declarations {
		if d.Kind == model.KindDoc && d.Placeholder == nil {
			if d.Side == model.ProductionSide && !reg.HasTest(model.TestRef{Class: d.Test.Class}) {
				continue
			}
			if d.Side == model.TestSide && !reg.HasCodeUnit(d.Unit.ClassRef()) {
				continue
			}
		}
		reg.RegisterDeclaration(d)
	}
}

// parseSource scans src, reusing a cached result when the content is unchanged.
func (e *Engine) parseSource(p *parse.Parser, rel string, src []byte, side model.Side) (*parse.File, error) {
	sum := sha256.Sum256(src)
	key := fmt.Sprintf("%d|%s", side, rel)
	if c, ok := e.parsed.Get(key); ok && c.sum == sum {
		return c.file, nil
	}

	class := ""
	if side == model.TestSide {
		class = e.locator.ClassForPath(rel)
	}
	f, err := p.Parse(rel, src, side, class)
	if err != nil {
		return nil, err
	}
	e.parsed.Add(key, cachedFile{sum: sum, file: f})
	return f, nil
}

// sideOf classifies a path that may lie outside the configured directories.
func (e *Engine) sideOf(rel string, fallback model.Side) model.Side {
	side, ok := discover.Classify(rel, discover.Options{Production: e.cfg.Production, Tests: e.cfg.Tests})
	if !ok {
		return fallback
	}
	return side
}

func readError(rel string, err error) error {
	return errors.Wrap(errors.ParseFailure, "reading file", err).At(rel, 0)
}
