package blob

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateKey(t *testing.T) {
	longValidPath := strings.Repeat("a/", 1024)

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{name: "empty-key", key: "", want: false},
		{name: "key-too-long", key: longValidPath, want: false},
		{name: "valid-key", key: "assets/3f2a/app.js", want: true},
		{name: "valid-unicode", key: "assets/✅.png", want: true},
		{name: "dot", key: ".", want: false},
		{name: "dotdot", key: "..", want: false},
		{name: "relative", key: "assets/../secret", want: false},
		{name: "dot-segment", key: "assets/./app.js", want: false},
		{name: "trailing-dotdot", key: "assets/..", want: false},
		{name: "dots-in-name", key: "assets/3f2a/a..b.js", want: true},
		{name: "dots-in-dir", key: "assets/v1..2/app.js", want: true},
		{name: "backslash-in-name", key: "assets/a\\b.js", want: true},
		{name: "dir-marker", key: "assets/3f2a/", want: true},
		{name: "leading-slash", key: "/assets/app.js", want: false},
		{name: "invalid-utf8", key: "test\xffstring", want: false},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, ValidateKey(test.key), test.name)
	}
}

func entryPaths(entries []*Entry) (dirs []string, files []string) {
	dirs, files = []string{}, []string{}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Path)
		} else {
			files = append(files, e.Path)
		}
	}
	return dirs, files
}

func TestObjectListerRecursive(t *testing.T) {
	l := newObjectLister("base/fp/", true)
	for _, key := range []string{
		"base/fp/",
		"base/fp/app.js",
		"base/fp/css/",
		"base/fp/css/site.css",
		"base/fp/img/logos/a.png",
		"base/other/ignored.js",
	} {
		l.addObject(key)
	}

	dirs, files := entryPaths(l.entries())
	assert.Equal(t, []string{"base/fp/css", "base/fp/img", "base/fp/img/logos"}, dirs)
	assert.Equal(t, []string{"base/fp/app.js", "base/fp/css/site.css", "base/fp/img/logos/a.png"}, files)
}

func TestObjectListerShallow(t *testing.T) {
	l := newObjectLister("base/", false)
	l.addObject("base/top.js")
	l.addObject("base/deep/x.js")
	l.addCommonPrefix("base/deep/")

	dirs, files := entryPaths(l.entries())
	assert.Equal(t, []string{"base/deep"}, dirs)
	assert.Equal(t, []string{"base/top.js"}, files)
}

func TestObjectListerRoot(t *testing.T) {
	l := newObjectLister(listPrefix(""), true)
	l.addObject("a/b.txt")

	dirs, files := entryPaths(l.entries())
	assert.Equal(t, []string{"a"}, dirs)
	assert.Equal(t, []string{"a/b.txt"}, files)
}

func TestListPrefix(t *testing.T) {
	assert.Equal(t, "", listPrefix(""))
	assert.Equal(t, "a/", listPrefix("a"))
	assert.Equal(t, "a/b/", listPrefix("/a/b/"))
}
