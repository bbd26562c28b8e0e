package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const markedSource = "let greeting = \"hi\"\nfn main():\n    return greeting\n"
const hostSource = "greeting = \"hi\"\ndef main():\n    return greeting\n"

func TestRewriteCommandRequiresPath(t *testing.T) {
	res := runFlux(t, "rewrite")
	if res.code != 1 {
		t.Fatalf("expected failure, got %+v", res)
	}
	if !strings.Contains(res.stderr, "requires at least 1 arg") {
		t.Fatalf("unexpected stderr: %q", res.stderr)
	}
}

func TestRewriteCommandPrintsHostText(t *testing.T) {
	path := writeScript(t, markedSource)

	res := runFlux(t, "rewrite", path)
	if res.code != 0 {
		t.Fatalf("exit %d, stderr: %s", res.code, res.stderr)
	}
	if res.stdout != hostSource {
		t.Fatalf("unexpected stdout: %q", res.stdout)
	}
}

func TestRewriteCommandCheckDetectsMarkers(t *testing.T) {
	path := writeScript(t, markedSource)

	res := runFlux(t, "rewrite", "--check", path)
	if res.code != 1 {
		t.Fatalf("expected check failure, got %+v", res)
	}
	if !strings.Contains(res.stderr, "1 file(s) use flux markers") {
		t.Fatalf("unexpected stderr: %q", res.stderr)
	}
	if res.stdout != "" {
		t.Fatalf("check must not print, got %q", res.stdout)
	}
}

func TestRewriteCommandCheckPassesPlainStarlark(t *testing.T) {
	path := writeScript(t, hostSource)

	if res := runFlux(t, "rewrite", "--check", path); res.code != 0 {
		t.Fatalf("expected clean check, got %+v", res)
	}
}

func TestRewriteCommandWritesHostFiles(t *testing.T) {
	root := t.TempDir()
	first := writeScriptIn(t, root, "a.flux", markedSource)
	second := writeScriptIn(t, root, filepath.Join("nested", "b.flux"), "let n = 2\n")
	writeScriptIn(t, root, "notes.txt", "let this = alone\n")

	res := runFlux(t, "rewrite", "-w", root)
	if res.code != 0 {
		t.Fatalf("exit %d, stderr: %s", res.code, res.stderr)
	}

	for path, want := range map[string]string{
		strings.TrimSuffix(first, ".flux") + ".star":  hostSource,
		strings.TrimSuffix(second, ".flux") + ".star": "n = 2\n",
	} {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if string(got) != want {
			t.Fatalf("%s: unexpected content %q", path, got)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "notes.star")); !os.IsNotExist(err) {
		t.Fatalf("non-flux files in directories must be skipped, stat err: %v", err)
	}

	original, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if string(original) != markedSource {
		t.Fatalf("-w must leave the source alone, got %q", original)
	}
}

func TestCollectFluxFilesDedupesAndSorts(t *testing.T) {
	root := t.TempDir()
	b := writeScriptIn(t, root, "b.flux", "")
	a := writeScriptIn(t, root, "a.flux", "")

	files, err := collectFluxFiles([]string{b, root, a})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
	if files[0] != a || files[1] != b {
		t.Fatalf("unexpected order: %v", files)
	}
}

func TestCollectFluxFilesMissingTarget(t *testing.T) {
	_, err := collectFluxFiles([]string{filepath.Join(t.TempDir(), "missing")})
	if err == nil || !strings.Contains(err.Error(), "stat") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCollectFluxFilesSkipsHiddenDirectories(t *testing.T) {
	root := t.TempDir()
	kept := writeScriptIn(t, root, filepath.Join("src", "main.flux"), "")
	writeScriptIn(t, root, filepath.Join(".cache", "old.flux"), "")
	writeScriptIn(t, root, filepath.Join("src", "main.star"), "")

	files, err := collectFluxFiles([]string{root})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(files) != 1 || files[0] != kept {
		t.Fatalf("unexpected files: %v", files)
	}

	hidden := filepath.Join(root, ".cache")
	files, err = collectFluxFiles([]string{hidden})
	if err != nil {
		t.Fatalf("collect hidden root: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("a hidden directory named explicitly is still walked: %v", files)
	}
}
