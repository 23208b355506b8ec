package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nurl "net/url"
	"strconv"
	"strings"

	"github.com/IliaW/site-scrape-runner/internal/tabular"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	readability "github.com/go-shiori/go-readability"
	"gopkg.in/yaml.v3"
)

const (
	PageTitleName = "page_title"
	OneTableName  = "one_table"
	ArticleName   = "article"
)

// Page columns read by one_table.
const (
	ColumnHTMLID    = "html_id_1"
	ColumnHTMLClass = "html_class_1"
)

var ErrTableNotFound = errors.New("table not found")

func checkFormat(format string) (string, error) {
	if format == "" {
		return tabular.FormatXLSX, nil
	}
	format = strings.ToLower(format)
	if format != tabular.FormatCSV && format != tabular.FormatXLSX {
		return "", fmt.Errorf("%w: %q", tabular.ErrUnsupportedFormat, format)
	}
	return format, nil
}

type pageTitle struct {
	Save   bool   `yaml:"save"`
	Format string `yaml:"format"`
}

func newPageTitle(opts *yaml.Node) (Handler, error) {
	h := &pageTitle{}
	if err := decodeOptions(opts, h); err != nil {
		return nil, err
	}
	var err error
	if h.Format, err = checkFormat(h.Format); err != nil {
		return nil, err
	}
	return h, nil
}

// Process logs the page title and optionally saves it as a one row table.
func (h *pageTitle) Process(ctx context.Context, req *Request) error {
	req.Log.Info("processing page.")
	title := strings.TrimSpace(req.Title())
	req.Log.Info("page title.", slog.String("title", title))
	if h.Save {
		t := tabular.New("nickname", "url", "title")
		t.Append(req.Page.Nickname, req.Page.URL, title)
		if _, err := req.Save(ctx, t, h.Format); err != nil {
			return err
		}
	}
	req.Log.Info("completed processing page.")
	return nil
}

type oneTable struct {
	Selector string `yaml:"selector"`
	Format   string `yaml:"format"`

	sel cascadia.Sel
}

func newOneTable(opts *yaml.Node) (Handler, error) {
	h := &oneTable{}
	if err := decodeOptions(opts, h); err != nil {
		return nil, err
	}
	var err error
	if h.Format, err = checkFormat(h.Format); err != nil {
		return nil, err
	}
	if h.Selector != "" {
		if h.sel, err = cascadia.Parse(h.Selector); err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", h.Selector, err)
		}
	}
	return h, nil
}

// Process extracts a single html table. The table is picked by the selector option, or by the page's
// html_id_1 and html_class_1 columns. A page with neither is skipped.
func (h *oneTable) Process(ctx context.Context, req *Request) error {
	req.Log.Info("processing page.")
	var table *goquery.Selection
	if h.sel != nil {
		table = req.Document.FindNodes(cascadia.QueryAll(req.Document.Get(0), h.sel)...).First()
	} else {
		id, hasID := req.Page.Field(ColumnHTMLID)
		class, hasClass := req.Page.Field(ColumnHTMLClass)
		if !hasID && !hasClass {
			req.Log.Error("nothing to do as no id and no class were supplied.")
			return nil
		}
		table = req.Document.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
			if hasID && s.AttrOr("id", "") != id {
				return false
			}
			return !hasClass || hasClasses(s.AttrOr("class", ""), class)
		}).First()
	}
	if table.Length() == 0 {
		return ErrTableNotFound
	}

	result := extractTable(table)
	req.Log.Info("table extracted.", slog.Int("columns", len(result.Columns)), slog.Int("rows", len(result.Rows)))
	if _, err := req.Save(ctx, result, h.Format); err != nil {
		return err
	}
	req.Log.Info("completed processing page.")
	return nil
}

func hasClasses(attr, want string) bool {
	have := strings.Fields(attr)
	for _, w := range strings.Fields(want) {
		found := false
		for _, c := range have {
			if c == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// extractTable reads th cells as column names and td cells as rows. Rows without td are dropped.
// Columns without a header are named column_N.
func extractTable(table *goquery.Selection) *tabular.Table {
	var columns []string
	var rows [][]string
	width := 0
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tr.Find("th").Each(func(_ int, th *goquery.Selection) {
			columns = append(columns, strings.TrimSpace(th.Text()))
		})
		var row []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			row = append(row, strings.TrimSpace(td.Text()))
		})
		if len(row) == 0 {
			return
		}
		width = max(width, len(row))
		rows = append(rows, row)
	})
	for i := len(columns); i < width; i++ {
		columns = append(columns, "column_"+strconv.Itoa(i+1))
	}

	t := tabular.New(columns...)
	for _, row := range rows {
		t.Append(row...)
	}
	return t
}

type article struct {
	Format string `yaml:"format"`

	conv *converter.Converter
}

func newArticle(opts *yaml.Node) (Handler, error) {
	h := &article{}
	if err := decodeOptions(opts, h); err != nil {
		return nil, err
	}
	var err error
	if h.Format, err = checkFormat(h.Format); err != nil {
		return nil, err
	}
	h.conv = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
	return h, nil
}

// Process runs readability over the page and saves the main content as markdown in a one row table.
func (h *article) Process(ctx context.Context, req *Request) error {
	req.Log.Info("processing page.")
	pageURL, err := nurl.Parse(req.Page.URL)
	if err != nil {
		return fmt.Errorf("invalid page url: %w", err)
	}
	if req.Document.Url != nil {
		pageURL = req.Document.Url
	}
	raw, err := req.Document.Html()
	if err != nil {
		return err
	}
	art, err := readability.FromReader(strings.NewReader(raw), pageURL)
	if err != nil {
		return fmt.Errorf("readability: %w", err)
	}
	markdown, err := h.conv.ConvertString(art.Content, converter.WithDomain(pageURL.Scheme+"://"+pageURL.Host))
	if err != nil {
		return fmt.Errorf("markdown: %w", err)
	}

	t := tabular.New("nickname", "url", "title", "byline", "site_name", "language", "excerpt", "markdown")
	t.Append(req.Page.Nickname, req.Page.URL, art.Title, art.Byline, art.SiteName, art.Language, art.Excerpt,
		strings.TrimSpace(markdown))
	if _, err = req.Save(ctx, t, h.Format); err != nil {
		return err
	}
	req.Log.Info("completed processing page.")
	return nil
}
