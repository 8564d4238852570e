package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o644))

	hash, err := FileHash(path)
	require.NoError(t, err)
	assert.Equal(t, "c4ca4238a0b923820dcc509a6f75849b", hash)
	assert.Equal(t, hash, StringHash("1"))

	_, err = FileHash(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "text/css; charset=utf-8", DetectContentType("assets/app.css", nil))
	assert.Equal(t, "text/plain; charset=utf-8", DetectContentType("README.md", nil))
	assert.Equal(t, "image/png", DetectContentType("logo.png", nil))
	assert.Equal(t, "application/pdf", DetectContentType("noext", []byte("%PDF-1.4\n")))
	assert.Equal(t, defaultContentType, DetectContentType("noext", nil))
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base string
		elem []string
		want string
	}{
		{"https://cdn.example.com/assets/", []string{"abc"}, "https://cdn.example.com/assets/abc"},
		{"/assets", []string{"abc", "/x.js"}, "/assets/abc/x.js"},
		{"", []string{"abc"}, "/abc"},
		{"/assets", []string{""}, "/assets"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinURL(tt.base, tt.elem...))
	}
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "css/site.css", EscapePath("css/site.css"))
	assert.Equal(t, "%23notes.txt", EscapePath("#notes.txt"))
	assert.Equal(t, "js/what%3F.js", EscapePath("js/what?.js"))
	assert.Equal(t, "app%5B1%5D.js", EscapePath("app[1].js"))
	assert.Equal(t, "my%20file.js", EscapePath("my file.js"))
}

func TestIsValidURL(t *testing.T) {
	assert.True(t, IsValidURL("https://cdn.example.com"))
	assert.True(t, IsValidURL("http://localhost:9000"))
	assert.False(t, IsValidURL("ftp://example.com"))
	assert.False(t, IsValidURL("/assets"))
	assert.False(t, IsValidURL("://bad"))
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden("/src/a/.hidden"))
	assert.True(t, IsHidden(".git"))
	assert.False(t, IsHidden("/src/.a/x.txt"))
}

func TestEnsureParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "file.db")
	require.NoError(t, EnsureParent(path))
	assert.True(t, DirExists(filepath.Dir(path)))
	assert.False(t, FileExists(path))
}
