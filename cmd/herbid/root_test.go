package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCatalogSeedAndList(t *testing.T) {
	t.Setenv("CATALOG", "sqlite")
	t.Setenv("CATALOG_PATH", filepath.Join(t.TempDir(), "herbs.db"))
	t.Setenv("PROVIDER", "none")

	out, err := runCLI(t, "catalog", "seed", "-q")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !strings.Contains(out, "seeded 10 herbs") {
		t.Fatalf("seed output = %q", out)
	}

	out, err = runCLI(t, "catalog", "seed", "-q")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "already populated") {
		t.Fatalf("second seed output = %q", out)
	}

	out, err = runCLI(t, "catalog", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "COMMON NAME") || !strings.Contains(out, "Neem") {
		t.Fatalf("list output = %q", out)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	t.Setenv("MATCHER", "bogus")
	if _, err := runCLI(t, "catalog", "list"); err == nil {
		t.Fatal("expected config error")
	}
}

func TestCommandArgs(t *testing.T) {
	t.Setenv("CATALOG", "memory")
	if _, err := runCLI(t, "catalog", "import"); err == nil {
		t.Fatal("import without a directory should fail")
	}
	if _, err := runCLI(t, "identify"); err == nil {
		t.Fatal("identify without an image should fail")
	}
}
