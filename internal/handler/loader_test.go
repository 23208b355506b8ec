package handler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func yamlNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	require.NotEmpty(t, doc.Content)
	return doc.Content[0]
}

func writeDecl(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "processor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, 3, reg.Len())
	_, ok := reg.Get(" One_Table ")
	assert.True(t, ok)
	_, ok = reg.Get("missing")
	assert.False(t, ok)

	_, ok = Registry{}.Get(OneTableName)
	assert.False(t, ok)

	_, err := NewRegistry(Builtin{Name: "a", New: newPageTitle}, Builtin{Name: "A", New: newPageTitle})
	assert.Error(t, err)
	_, err = NewRegistry(Builtin{Name: " ", New: newPageTitle})
	assert.Error(t, err)
	_, err = NewRegistry(Builtin{Name: "x"})
	assert.Error(t, err)
}

func TestLoad_Builtin(t *testing.T) {
	l := NewLoader(DefaultRegistry(), discard)
	path := writeDecl(t, t.TempDir(), "handler: one_table\noptions:\n  format: csv\n")

	loaded, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, OneTableName, loaded.Name)
	h, ok := loaded.Handler.(*oneTable)
	require.True(t, ok)
	assert.Equal(t, "csv", h.Format)
}

func TestLoad_DefaultsWithoutOptions(t *testing.T) {
	l := NewLoader(DefaultRegistry(), discard)
	loaded, err := l.Load(writeDecl(t, t.TempDir(), "handler: page_title\n"))
	require.NoError(t, err)
	h, ok := loaded.Handler.(*pageTitle)
	require.True(t, ok)
	assert.False(t, h.Save)
	assert.Equal(t, "xlsx", h.Format)
}

func TestLoad_ReadsFreshEveryTime(t *testing.T) {
	l := NewLoader(DefaultRegistry(), discard)
	dir := t.TempDir()
	path := writeDecl(t, dir, "handler: page_title\n")
	first, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, PageTitleName, first.Name)

	writeDecl(t, dir, "handler: article\n")
	second, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ArticleName, second.Name)
}

func TestLoad_Errors(t *testing.T) {
	l := NewLoader(DefaultRegistry(), discard)
	tests := []struct {
		name    string
		content string
	}{
		{"unknown handler", "handler: nope\n"},
		{"both", "handler: page_title\nplugin: x.so\n"},
		{"neither", "options:\n  format: csv\n"},
		{"empty file", ""},
		{"invalid yaml", "handler: [\n"},
		{"unknown field", "handler: page_title\nprocess_soup: true\n"},
		{"bad format option", "handler: one_table\noptions:\n  format: json\n"},
		{"bad options type", "handler: one_table\noptions: [1, 2]\n"},
		{"missing plugin", "plugin: ./missing.so\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeDecl(t, t.TempDir(), tt.content)
			_, err := l.Load(path)
			var le *HandlerLoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, path, le.Path)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := NewLoader(DefaultRegistry(), discard).Load(filepath.Join(t.TempDir(), "processor.yaml"))
	var le *HandlerLoadError
	assert.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProcessFunc(t *testing.T) {
	called := 0
	var h Handler = ProcessFunc(func(context.Context, *Request) error {
		called++
		return nil
	})
	require.NoError(t, h.Process(context.Background(), &Request{}))
	assert.Equal(t, 1, called)
}
