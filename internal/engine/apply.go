package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
	"github.com/TestFlowLabs/testlink-sub002/internal/mutate"
)

const lockRetry = 50 * time.Millisecond

// FileChange records the outcome of editing one file.
type FileChange struct {
	Path    string
	Applied int
	Skipped int
}

// byFile splits actions per target file, keeping files in first-seen order.
func byFile(actions []model.EditAction) ([]string, map[string][]model.EditAction) {
	grouped := make(map[string][]model.EditAction)
	var files []string
	for _, a := range actions {
		if _, ok := grouped[a.File]; !ok {
			files = append(files, a.File)
		}
		grouped[a.File] = append(grouped[a.File], a)
	}
	return files, grouped
}

// actionSide returns the side of the file an action edits.
func actionSide(a model.EditAction) model.Side {
	if a.Kind == model.RemoveDeclaration && a.Decl != nil {
		return a.Decl.Side
	}
	return a.Side
}

// lockPath names the lock file serializing writers of one project.
func (e *Engine) lockPath() string {
	sum := sha256.Sum256([]byte(e.root))
	return filepath.Join(os.TempDir(), "testlink-"+hex.EncodeToString(sum[:8])+".lock")
}

// apply performs a whole-file read-modify-write for every file touched by
// actions while holding the project lock. Per-action failures are returned
// alongside the changes that did succeed.
func (e *Engine) apply(ctx context.Context, actions []model.EditAction) ([]FileChange, []error, error) {
	if len(actions) == 0 {
		return nil, nil, nil
	}

	lock := flock.New(e.lockPath())
	ok, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("acquiring lock %s: busy", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	m := mutate.New(e.cfg.Attributes, e.logger)
	files, grouped := byFile(actions)

	var changes []FileChange
	var errs errors.Collector
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return changes, errs.Errors(), err
		}
		batch := grouped[rel]
		side := actionSide(batch[0])
		target := mutate.Target{Path: rel, Side: side}
		if side == model.TestSide {
			target.Class = e.locator.ClassForPath(rel)
		}

		abs := filepath.Join(e.root, filepath.FromSlash(rel))
		src, err := os.ReadFile(abs)
		if err != nil {
			errs.Add(errors.Wrap(errors.WriteFailure, "reading file", err).At(rel, 0))
			continue
		}
		res, err := m.Apply(target, src, batch)
		if err != nil {
			errs.Add(err)
			continue
		}
		errs.Merge(res.Errors)
		if res.Changed() {
			if err := writeAtomic(abs, res.Text); err != nil {
				errs.Add(errors.Wrap(errors.WriteFailure, "writing file", err).At(rel, 0))
				continue
			}
			e.logger.Info("updated file", "path", rel, "applied", res.Applied)
		}
		changes = append(changes, FileChange{Path: rel, Applied: res.Applied, Skipped: res.Skipped})
	}
	return changes, errs.Errors(), nil
}

// writeAtomic replaces path with data via a temp file in the same directory,
// keeping the original permissions.
func writeAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".testlink-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
