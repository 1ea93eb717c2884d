// Package locate resolves fully-qualified PHP class names to files.
//
// Strategies run in order and the first hit wins: the composer classmap,
// PSR-4 prefix mapping with an existence check, then a recursive filename
// glob whose matches are taken in lexical path order.
package locate

import (
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tidwall/gjson"

	"github.com/TestFlowLabs/testlink-sub002/internal/config"
	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
)

const (
	composerFile = "composer.json"
	classmapFile = "vendor/composer/autoload_classmap.php"
	cacheSize    = 1024
)

var classmapRe = regexp.MustCompile(`'((?:[^'\\]|\\.)+)'\s*=>\s*\$(baseDir|vendorDir)\s*\.\s*'([^']+)'`)

// Mapping is one PSR-4 prefix with its directory relative to the root.
type Mapping struct {
	Prefix string // with trailing separator, e.g. `App\`
	Dir    string // slash-separated, no trailing slash
}

// Locator resolves class names under one project root. Safe for concurrent use.
type Locator struct {
	root     string
	classmap map[string]string
	mappings []Mapping
	cache    *lru.Cache[string, string]
	logger   *slog.Logger
}

// New builds a Locator for root. It reads composer.json and the composer
// classmap when present; extra mappings come from configuration and the
// App\ and Tests\ conventions fill in whatever is still missing.
func New(root string, extra []config.NamespaceMapping, logger *slog.Logger) (*Locator, error) {
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}
	l := &Locator{
		root:     root,
		classmap: readClassmap(root),
		cache:    cache,
		logger:   logger,
	}

	var mappings []Mapping
	for _, ns := range extra {
		mappings = append(mappings, newMapping(ns.Prefix, ns.Dir))
	}
	mappings = append(mappings, readComposer(root, logger)...)
	mappings = append(mappings, newMapping(`App\`, "app"), newMapping(`Tests\`, "tests"))

	seen := make(map[string]bool)
	for _, m := range mappings {
		key := strings.ToLower(m.Prefix) + "|" + m.Dir
		if seen[key] {
			continue
		}
		seen[key] = true
		l.mappings = append(l.mappings, m)
	}
	// Longest prefix first so nested namespaces win.
	sort.SliceStable(l.mappings, func(i, j int) bool {
		return len(l.mappings[i].Prefix) > len(l.mappings[j].Prefix)
	})

	logger.Debug("locator ready", "classmap", len(l.classmap), "mappings", len(l.mappings))
	return l, nil
}

func newMapping(prefix, dir string) Mapping {
	prefix = strings.Trim(prefix, `\`)
	if prefix != "" {
		prefix += `\`
	}
	dir = strings.Trim(filepath.ToSlash(filepath.Clean(dir)), "/")
	if dir == "." {
		dir = ""
	}
	return Mapping{Prefix: prefix, Dir: dir}
}

// Resolve returns the slash-separated path, relative to the root, of the file
// declaring class. It never creates files.
func (l *Locator) Resolve(class string) (string, error) {
	class = strings.TrimPrefix(strings.TrimSpace(class), `\`)
	if class == "" {
		return "", errors.New(errors.LocatorNotFound, "empty class name")
	}
	key := strings.ToLower(class)
	if rel, ok := l.cache.Get(key); ok {
		return rel, nil
	}

	for _, strategy := range []func(string) string{l.fromClassmap, l.fromPSR4, l.fromGlob} {
		if rel := strategy(class); rel != "" {
			l.cache.Add(key, rel)
			return rel, nil
		}
	}
	return "", errors.Newf(errors.LocatorNotFound, "no file found for %s", class)
}

func (l *Locator) fromClassmap(class string) string {
	rel, ok := l.classmap[strings.ToLower(class)]
	if ok && l.exists(rel) {
		return rel
	}
	return ""
}

func (l *Locator) fromPSR4(class string) string {
	for _, m := range l.mappings {
		if !hasPrefixFold(class, m.Prefix) {
			continue
		}
		rest := strings.ReplaceAll(class[len(m.Prefix):], `\`, "/") + ".php"
		rel := path.Join(m.Dir, rest)
		if l.exists(rel) {
			return rel
		}
	}
	return ""
}

func (l *Locator) fromGlob(class string) string {
	short := class[strings.LastIndex(class, `\`)+1:]
	matches, err := doublestar.Glob(os.DirFS(l.root), "**/"+short+".php", doublestar.WithFilesOnly())
	if err != nil {
		l.logger.Debug("glob failed", "class", class, "error", err)
		return ""
	}
	var candidates []string
	for _, m := range matches {
		if strings.HasPrefix(m, "vendor/") || strings.Contains(m, "/vendor/") || strings.Contains(m, "node_modules/") {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	if len(candidates) > 1 {
		l.logger.Debug("glob matched several files", "class", class, "picked", candidates[0], "count", len(candidates))
	}
	return candidates[0]
}

// ClassForPath derives the class-like name of a file from the PSR-4
// mappings, falling back to the path itself.
func (l *Locator) ClassForPath(rel string) string {
	rel = filepath.ToSlash(rel)
	noExt := strings.TrimSuffix(rel, path.Ext(rel))

	best := -1
	for i, m := range l.mappings {
		if m.Dir != "" && !strings.HasPrefix(noExt, m.Dir+"/") {
			continue
		}
		if best < 0 || len(m.Dir) > len(l.mappings[best].Dir) {
			best = i
		}
	}
	if best >= 0 {
		m := l.mappings[best]
		rest := noExt
		if m.Dir != "" {
			rest = noExt[len(m.Dir)+1:]
		}
		return m.Prefix + strings.ReplaceAll(rest, "/", `\`)
	}
	return strings.ReplaceAll(noExt, "/", `\`)
}

func (l *Locator) exists(rel string) bool {
	info, err := os.Stat(filepath.Join(l.root, filepath.FromSlash(rel)))
	return err == nil && !info.IsDir()
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// readComposer reads autoload and autoload-dev PSR-4 sections.
func readComposer(root string, logger *slog.Logger) []Mapping {
	data, err := os.ReadFile(filepath.Join(root, composerFile))
	if err != nil {
		return nil
	}
	if !gjson.ValidBytes(data) {
		logger.Warn("ignoring invalid composer.json")
		return nil
	}

	var out []Mapping
	for _, section := range []string{"autoload.psr-4", "autoload-dev.psr-4"} {
		gjson.GetBytes(data, section).ForEach(func(key, value gjson.Result) bool {
			if value.IsArray() {
				for _, dir := range value.Array() {
					out = append(out, newMapping(key.String(), dir.String()))
				}
			} else {
				out = append(out, newMapping(key.String(), value.String()))
			}
			return true
		})
	}
	return out
}

// readClassmap parses composer's generated autoload_classmap.php.
func readClassmap(root string) map[string]string {
	out := make(map[string]string)
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(classmapFile)))
	if err != nil {
		return out
	}
	for _, m := range classmapRe.FindAllStringSubmatch(string(data), -1) {
		class := strings.ReplaceAll(m[1], `\\`, `\`)
		rel := strings.TrimPrefix(m[3], "/")
		if m[2] == "vendorDir" {
			rel = "vendor/" + rel
		}
		out[strings.ToLower(class)] = rel
	}
	return out
}
