// Package discover finds PHP source files in a project and sorts them into
// the production side and the test side.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/TestFlowLabs/testlink-sub002/internal/lang"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
)

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path     string // Relative to project root, slash-separated
	Language string
	Side     model.Side
}

// Options selects which directories hold each side.
type Options struct {
	Production []string
	Tests      []string
	Exclude    []string // doublestar patterns matched against Path
}

var skipDirs = map[string]struct{}{
	"vendor":       {},
	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
	".idea":        {},
	"storage":      {},
	"bootstrap":    {},
	"build":        {},
	"dist":         {},
	"coverage":     {},
}

// Files discovers PHP files under the configured production and test
// directories of root. Test directories win when both match a path.
func Files(root string, opts Options) ([]FileEntry, error) {
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []FileEntry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		langName := lang.ForExtension(filepath.Ext(name))
		if langName == "" {
			return nil
		}

		if excluded(rel, opts.Exclude) {
			return nil
		}

		side, ok := Classify(rel, opts)
		if !ok {
			return nil
		}

		results = append(results, FileEntry{Path: rel, Language: langName, Side: side})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

// Classify decides which side a slash-separated relative path belongs to.
func Classify(rel string, opts Options) (model.Side, bool) {
	for _, dir := range opts.Tests {
		if underDir(rel, dir) {
			return model.TestSide, true
		}
	}
	for _, dir := range opts.Production {
		if underDir(rel, dir) {
			return model.ProductionSide, true
		}
	}
	return model.ProductionSide, false
}

func underDir(rel, dir string) bool {
	dir = strings.Trim(filepath.ToSlash(filepath.Clean(dir)), "/")
	if dir == "" || dir == "." {
		return true
	}
	return rel == dir || strings.HasPrefix(rel, dir+"/")
}

func excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
