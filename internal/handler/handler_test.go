package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/IliaW/site-scrape-runner/internal/export"
	"github.com/IliaW/site-scrape-runner/internal/model"
	"github.com/IliaW/site-scrape-runner/internal/tabular"
	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const tablesPage = `<html><head><title>Prices</title></head><body>
<table id="other"><tr><th>X</th></tr><tr><td>ignored</td></tr></table>
<table id="prices" class="data wide">
  <tr><th>Fruit</th><th>Price</th></tr>
  <tr><td> apple </td><td>1.20</td></tr>
  <tr></tr>
  <tr><td>pear</td><td>0.80</td></tr>
</table>
<table class="plain"><tr><td>a</td><td>b</td></tr><tr><td>c</td></tr></table>
</body></html>`

func newRequest(t *testing.T, html string, page model.PageEntry) *Request {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	root := t.TempDir()
	return &Request{
		Document:  doc,
		Page:      page,
		SiteName:  "demo",
		OutputDir: filepath.Join(root, "demo"),
		Log:       discard,
		Writer:    export.NewWriter(root, nil, discard),
		Now:       func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) },
	}
}

func readArtifact(t *testing.T, req *Request) *tabular.Table {
	t.Helper()
	require.Len(t, req.Artifacts(), 1)
	got, err := tabular.Read(req.Artifacts()[0])
	require.NoError(t, err)
	return got
}

func TestRequestSave_Path(t *testing.T) {
	req := newRequest(t, tablesPage, model.PageEntry{Nickname: "home"})
	path, err := req.Save(context.Background(), tabular.New("a"), tabular.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(req.OutputDir, "2024", "5", "6", "2024-05-06-070809.000000-home.csv"), path)
}

func TestRequestSave_SameInstant(t *testing.T) {
	req := newRequest(t, tablesPage, model.PageEntry{Nickname: "home"})
	first, err := req.Save(context.Background(), tabular.New("a"), tabular.FormatCSV)
	require.NoError(t, err)
	second, err := req.Save(context.Background(), tabular.New("a"), tabular.FormatCSV)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Len(t, req.Artifacts(), 2)
}

func TestRequestSave_WriteFailure(t *testing.T) {
	req := newRequest(t, tablesPage, model.PageEntry{Nickname: "home"})
	require.NoError(t, os.WriteFile(req.OutputDir, []byte("not a dir"), 0o644))

	path, err := req.Save(context.Background(), tabular.New("a"), tabular.FormatCSV)
	assert.NoError(t, err, "write errors are swallowed by default")
	assert.Empty(t, path)

	req.StrictWrites = true
	_, err = req.Save(context.Background(), tabular.New("a"), tabular.FormatCSV)
	var we *export.WriteError
	assert.ErrorAs(t, err, &we)
	assert.Empty(t, req.Artifacts())
}

func TestExecute(t *testing.T) {
	req := newRequest(t, tablesPage, model.PageEntry{Nickname: "home"})

	err := Execute(context.Background(), "boom", ProcessFunc(func(context.Context, *Request) error {
		panic("nil map")
	}), req)
	var he *HandlerExecutionError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "boom", he.Handler)
	assert.Contains(t, err.Error(), "nil map")

	cause := errors.New("bad row")
	err = Execute(context.Background(), "fails", ProcessFunc(func(context.Context, *Request) error {
		return cause
	}), req)
	assert.ErrorIs(t, err, cause)
	assert.ErrorAs(t, err, &he)

	assert.NoError(t, Execute(context.Background(), "ok", ProcessFunc(func(context.Context, *Request) error {
		return nil
	}), req))
}

func TestPageTitle(t *testing.T) {
	h, err := newPageTitle(nil)
	require.NoError(t, err)
	req := newRequest(t, tablesPage, model.PageEntry{Nickname: "home", URL: "http://x.test"})
	require.NoError(t, h.Process(context.Background(), req))
	assert.Empty(t, req.Artifacts())

	h = &pageTitle{Save: true, Format: tabular.FormatCSV}
	require.NoError(t, h.Process(context.Background(), req))
	got := readArtifact(t, req)
	assert.Equal(t, [][]string{{"home", "http://x.test", "Prices"}}, got.Rows)
}

func TestOneTable_ByID(t *testing.T) {
	h := &oneTable{Format: tabular.FormatCSV}
	req := newRequest(t, tablesPage, model.PageEntry{Nickname: "p", Extra: map[string]string{ColumnHTMLID: "prices"}})
	require.NoError(t, h.Process(context.Background(), req))

	got := readArtifact(t, req)
	assert.Equal(t, []string{"Fruit", "Price"}, got.Columns)
	assert.Equal(t, [][]string{{"apple", "1.20"}, {"pear", "0.80"}}, got.Rows)
}

func TestOneTable_ByClassWithoutHeaders(t *testing.T) {
	h := &oneTable{Format: tabular.FormatXLSX}
	req := newRequest(t, tablesPage, model.PageEntry{Nickname: "p", Extra: map[string]string{
		ColumnHTMLID: " ", ColumnHTMLClass: "plain"}})
	require.NoError(t, h.Process(context.Background(), req))

	got := readArtifact(t, req)
	assert.Equal(t, []string{"column_1", "column_2"}, got.Columns)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", ""}}, got.Rows)
}

func TestOneTable_IDAndClassMustBothMatch(t *testing.T) {
	h := &oneTable{Format: tabular.FormatCSV}
	req := newRequest(t, tablesPage, model.PageEntry{Nickname: "p", Extra: map[string]string{
		ColumnHTMLID: "prices", ColumnHTMLClass: "wide data"}})
	require.NoError(t, h.Process(context.Background(), req))
	assert.Len(t, req.Artifacts(), 1)

	req = newRequest(t, tablesPage, model.PageEntry{Nickname: "p", Extra: map[string]string{
		ColumnHTMLID: "prices", ColumnHTMLClass: "plain"}})
	assert.ErrorIs(t, h.Process(context.Background(), req), ErrTableNotFound)
}

func TestOneTable_Selector(t *testing.T) {
	node := yamlNode(t, "selector: 'table.wide'\nformat: csv\n")
	h, err := newOneTable(node)
	require.NoError(t, err)
	req := newRequest(t, tablesPage, model.PageEntry{Nickname: "p"})
	require.NoError(t, h.Process(context.Background(), req))
	assert.Equal(t, []string{"Fruit", "Price"}, readArtifact(t, req).Columns)

	_, err = newOneTable(yamlNode(t, "selector: 'table[['\n"))
	assert.Error(t, err)
}

func TestOneTable_NothingSupplied(t *testing.T) {
	h := &oneTable{Format: tabular.FormatCSV}
	req := newRequest(t, tablesPage, model.PageEntry{Nickname: "p"})
	assert.NoError(t, h.Process(context.Background(), req))
	assert.Empty(t, req.Artifacts())
}

func TestArticle(t *testing.T) {
	page := `<html><head><title>Quarterly Report</title></head><body>
<nav><a href="/">Home</a></nav>
<article><h1>Quarterly Report</h1>
<p>Revenue grew in every region during the quarter, driven by strong demand for the new product line
and continued growth in subscriptions. Margins improved as logistics costs fell.</p>
<p>The company expects the trend to continue next quarter and has raised its guidance accordingly,
citing a healthy order book and lower input prices across <a href="/markets">its markets</a>.</p>
</article></body></html>`
	h, err := newArticle(yamlNode(t, "format: csv\n"))
	require.NoError(t, err)
	req := newRequest(t, page, model.PageEntry{Nickname: "news", URL: "http://x.test/report"})
	require.NoError(t, h.Process(context.Background(), req))

	got := readArtifact(t, req)
	require.Len(t, got.Rows, 1)
	rec := got.Records()[0]
	assert.Equal(t, "news", rec["nickname"])
	assert.Contains(t, rec["markdown"], "Revenue grew")
}
