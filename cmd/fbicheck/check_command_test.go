package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fbicheck/internal/config"
	"fbicheck/internal/index"
	"fbicheck/internal/testsupport"
)

func stubIndex(t *testing.T, idx index.Querier) {
	t.Helper()
	previous := newIndexClient
	newIndexClient = func(*config.Config, *slog.Logger) (index.Querier, error) {
		return idx, nil
	}
	t.Cleanup(func() { newIndexClient = previous })
}

func TestCheckDryRunPrintsEvents(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := filepath.Join(env.archive, "badc")
	touch(t, dir, "new.nc", "kept.nc")

	idx := testsupport.NewIndex()
	idx.AddFiles(filepath.Join(dir, "kept.nc"), filepath.Join(dir, "gone.nc"))
	idx.AddDirs(dir)
	stubIndex(t, idx)

	stdout, _, err := runCLI(t, []string{"check", "--dry-run", dir}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	for _, want := range []string{
		filepath.Join(dir, "new.nc") + ":DEPOSIT",
		filepath.Join(dir, "gone.nc") + ":REMOVE",
		"Action",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output, got %q", want, stdout)
		}
	}
	if strings.Contains(stdout, "kept.nc:") {
		t.Fatalf("indexed file should not produce an event: %q", stdout)
	}
}

func TestCheckReportsConsistentDirectory(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := filepath.Join(env.archive, "clean")
	touch(t, dir, "a.nc")

	idx := testsupport.NewIndex()
	idx.AddFiles(filepath.Join(dir, "a.nc"))
	idx.AddDirs(dir)
	stubIndex(t, idx)

	stdout, _, err := runCLI(t, []string{"check", "--dry-run", dir}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(stdout, "consistent with the index") {
		t.Fatalf("unexpected output: %q", stdout)
	}
}

func TestRescanDryRunWritesFileList(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := filepath.Join(env.archive, "rescan")
	touch(t, dir, "a.nc", "b.txt", ".hidden.nc", "sub/c.nc")
	listPath := filepath.Join(env.baseDir, "files.txt")

	stdout, _, err := runCLI(t, []string{"rescan", "--dry-run", "--extension", "nc", "-o", listPath, dir}, env.configPath)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if !strings.Contains(stdout, filepath.Join(dir, "a.nc")+":DEPOSIT") {
		t.Fatalf("expected DEPOSIT for a.nc, got %q", stdout)
	}
	if !strings.Contains(stdout, "Submitted 1 files") {
		t.Fatalf("expected top-level scan only, got %q", stdout)
	}

	data, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatalf("read file list: %v", err)
	}
	if string(data) != filepath.Join(dir, "a.nc")+"\n" {
		t.Fatalf("unexpected file list %q", data)
	}

	stdout, _, err = runCLI(t, []string{"rescan", "--dry-run", "-r", "--extension", "nc", dir}, env.configPath)
	if err != nil {
		t.Fatalf("rescan -r: %v", err)
	}
	if !strings.Contains(stdout, "Submitted 2 files") {
		t.Fatalf("expected recursive scan to include sub/c.nc, got %q", stdout)
	}
}

func TestRescanRefusesRoot(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"rescan", "--dry-run", "/"}, env.configPath); err == nil {
		t.Fatal("expected rescan of / to fail")
	}
}

func TestRescanDatasetsJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	dataset := filepath.Join(env.archive, "cmip6")
	touch(t, dataset, "a.nc", "deep/b.nc", "readme.txt")
	manifests := filepath.Join(env.baseDir, "manifests")
	if err := os.MkdirAll(manifests, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	body := `{"datasets": ["` + dataset + `"]}`
	if err := os.WriteFile(filepath.Join(manifests, "cmip6.json"), []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	stdout, _, err := runCLI(t, []string{"rescan", "--dry-run", "--datasets-json", "--extension", "nc", manifests}, env.configPath)
	if err != nil {
		t.Fatalf("rescan --datasets-json: %v", err)
	}
	if !strings.Contains(stdout, filepath.Join(dataset, "deep", "b.nc")+":DEPOSIT") {
		t.Fatalf("expected nested dataset file, got %q", stdout)
	}
	if !strings.Contains(stdout, "Submitted 2 files") {
		t.Fatalf("expected both dataset files, got %q", stdout)
	}
}
