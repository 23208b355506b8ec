package worker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/IliaW/site-scrape-runner/internal/model"
	"github.com/IliaW/site-scrape-runner/internal/tabular"
)

// Required page list columns.
const (
	ColumnNickname = "nickname"
	ColumnURL      = "url"
	ColumnBrowser  = "browser_to_use"
)

var ErrPageListUnreadable = errors.New("page list unreadable")

// ReadPages loads a site's page list in file order. Columns other than the required ones end up in PageEntry.Extra.
func ReadPages(path string) ([]model.PageEntry, error) {
	t, err := tabular.Read(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPageListUnreadable, err)
	}
	var missing []string
	for _, c := range []string{ColumnNickname, ColumnURL, ColumnBrowser} {
		if t.Index(c) < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrPageListUnreadable, strings.Join(missing, ", "))
	}

	records := t.Records()
	pages := make([]model.PageEntry, 0, len(records))
	for i, rec := range records {
		page := model.PageEntry{Index: i, Extra: make(map[string]string)}
		for col, v := range rec {
			switch strings.ToLower(col) {
			case ColumnNickname:
				page.Nickname = strings.TrimSpace(v)
			case ColumnURL:
				page.URL = strings.TrimSpace(v)
			case ColumnBrowser:
				page.Browser = strings.TrimSpace(v)
			default:
				page.Extra[strings.ToLower(col)] = v
			}
		}
		if page.Nickname == "" {
			page.Nickname = fmt.Sprintf("page_%d", i+1)
		}
		pages = append(pages, page)
	}
	return pages, nil
}
