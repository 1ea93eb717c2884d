package discover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/TestFlowLabs/testlink-sub002/internal/model"
)

var laravel = Options{
	Production: []string{"app"},
	Tests:      []string{"tests"},
}

func TestDiscoverClassifiesSides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "app/Services/UserService.php", "<?php")
	writeFile(t, dir, "tests/Unit/UserServiceTest.php", "<?php")
	// Outside both sides
	writeFile(t, dir, "config/app.php", "<?php")
	// Non-PHP file should be ignored
	writeFile(t, dir, "app/readme.md", "hello")
	// Hidden file should be ignored
	writeFile(t, dir, "app/.hidden.php", "<?php")

	entries, err := Files(dir, laravel)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}

	// Should be sorted
	if entries[0].Path != "app/Services/UserService.php" || entries[0].Side != model.ProductionSide {
		t.Errorf("entry 0: got %+v", entries[0])
	}
	if entries[1].Path != "tests/Unit/UserServiceTest.php" || entries[1].Side != model.TestSide {
		t.Errorf("entry 1: got %+v", entries[1])
	}

	for _, e := range entries {
		if e.Language != "php" {
			t.Errorf("entry %q: language = %q, want php", e.Path, e.Language)
		}
	}
}

func TestDiscoverSkipDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "app/Models/User.php", "<?php")
	writeFile(t, dir, "app/vendor/pkg.php", "<?php")
	writeFile(t, dir, "app/node_modules/x.php", "<?php")
	writeFile(t, dir, "app/.cache/secret.php", "<?php")

	entries, err := Files(dir, laravel)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Path != "app/Models/User.php" {
		t.Errorf("expected app/Models/User.php, got %q", entries[0].Path)
	}
}

func TestDiscoverExclude(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "tests/Unit/ATest.php", "<?php")
	writeFile(t, dir, "tests/Fixtures/Stub.php", "<?php")

	opts := laravel
	opts.Exclude = []string{"tests/Fixtures/**"}
	entries, err := Files(dir, opts)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "tests/Unit/ATest.php" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestDiscoverGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, ".gitignore", "Proxy.php\n")
	writeFile(t, dir, "app/Generated/Proxy.php", "<?php")
	writeFile(t, dir, "app/Real.php", "<?php")

	entries, err := Files(dir, laravel)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "app/Real.php" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestDiscoverSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "app/Real.php", "<?php")

	// Create symlink
	err := os.Symlink(filepath.Join(dir, "app", "Real.php"), filepath.Join(dir, "app", "Link.php"))
	if err != nil {
		t.Skip("symlinks not supported")
	}

	entries, err := Files(dir, laravel)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry (no symlink), got %d", len(entries))
	}
	if entries[0].Path != "app/Real.php" {
		t.Errorf("expected app/Real.php, got %q", entries[0].Path)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	opts := Options{Production: []string{"src", "app"}, Tests: []string{"tests", "src/Tests"}}
	cases := []struct {
		path string
		side model.Side
		ok   bool
	}{
		{"src/Order.php", model.ProductionSide, true},
		{"app/Http/Kernel.php", model.ProductionSide, true},
		{"tests/Feature/OrderTest.php", model.TestSide, true},
		{"src/Tests/OrderTest.php", model.TestSide, true},
		{"srcs/Other.php", model.ProductionSide, false},
		{"routes/web.php", model.ProductionSide, false},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			side, ok := Classify(tc.path, opts)
			if ok != tc.ok || (ok && side != tc.side) {
				t.Errorf("Classify(%q) = %v, %v; want %v, %v", tc.path, side, ok, tc.side, tc.ok)
			}
		})
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
