package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// setupWorkspace writes a config using a local store and an in-memory cache
func setupWorkspace(t *testing.T) (configPath, storeRoot, srcDir string) {
	t.Helper()
	dir := t.TempDir()

	storeRoot = filepath.Join(dir, "bucket")
	require.NoError(t, os.MkdirAll(storeRoot, 0o755))

	srcDir = filepath.Join(dir, "site")
	writeTestFile(t, filepath.Join(srcDir, "index.html"), "<html></html>")
	writeTestFile(t, filepath.Join(srcDir, "css", "main.css"), "body{}")
	writeTestFile(t, filepath.Join(srcDir, ".DS_Store"), "junk")

	configPath = filepath.Join(dir, "cloudassets.yaml")
	writeTestFile(t, configPath, fmt.Sprintf(`
publisher:
  base_path: assets
  base_url: https://cdn.test/assets/
store:
  driver: local
  local:
    root: %s
cache:
  driver: memory
log_level: warn
`, storeRoot))

	return configPath, storeRoot, srcDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestPublishCommand(t *testing.T) {
	configPath, storeRoot, srcDir := setupWorkspace(t)

	out, err := execute(t, "publish", "--config", configPath, srcDir)
	require.NoError(t, err)
	assert.Contains(t, out, "https://cdn.test/assets/")

	dirs, err := filepath.Glob(filepath.Join(storeRoot, "assets", "*"))
	require.NoError(t, err)
	require.Len(t, dirs, 1)

	assert.FileExists(t, filepath.Join(dirs[0], "index.html"))
	assert.FileExists(t, filepath.Join(dirs[0], "css", "main.css"))
	assert.NoFileExists(t, filepath.Join(dirs[0], ".DS_Store"))
	assert.Contains(t, out, filepath.Base(dirs[0]))
}

func TestPublishCommand_SingleFile(t *testing.T) {
	configPath, storeRoot, srcDir := setupWorkspace(t)

	out, err := execute(t, "publish", "--config", configPath, filepath.Join(srcDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, out, "/index.html")

	dirs, err := filepath.Glob(filepath.Join(storeRoot, "assets", "*"))
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.FileExists(t, filepath.Join(dirs[0], "index.html"))
	assert.NoFileExists(t, filepath.Join(dirs[0], "css", "main.css"))
}

func TestPublishCommand_MissingPath(t *testing.T) {
	configPath, _, srcDir := setupWorkspace(t)

	_, err := execute(t, "publish", "--config", configPath, filepath.Join(srcDir, "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestPublishCommand_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "cloudassets.yaml")
	writeTestFile(t, configPath, "store:\n  driver: ftp\ncache:\n  driver: memory\n")

	_, err := execute(t, "publish", "--config", configPath, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestWarmupCommand(t *testing.T) {
	configPath, storeRoot, srcDir := setupWorkspace(t)

	manifest := filepath.Join(filepath.Dir(configPath), "bundles.yaml")
	writeTestFile(t, manifest, `
bundles:
  - name: site
    source_path: site
    files: ["*.html"]
  - name: broken
    source_path: does-not-exist
`)

	out, err := execute(t, "warmup", "--config", configPath, "--bundles", manifest)
	require.NoError(t, err, "failing bundles are reported, not returned")

	assert.Contains(t, out, "Assets have been warmed up")
	assert.Contains(t, out, "1 succeeded, 1 failed")
	assert.Contains(t, out, "index.html")
	assert.Contains(t, out, "broken")

	dirs, err := filepath.Glob(filepath.Join(storeRoot, "assets", "*"))
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.FileExists(t, filepath.Join(dirs[0], "css", "main.css"))
	assert.DirExists(t, srcDir)
}

func TestWarmupCommand_NoBundles(t *testing.T) {
	configPath, _, _ := setupWorkspace(t)

	_, err := execute(t, "warmup", "--config", configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bundles configured")
}
