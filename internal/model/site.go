package model

import (
	"strings"
)

// Site is one scrape target: a directory under the sites root with a page list and a handler declaration.
type Site struct {
	Name        string // directory name made safe for paths and logger names
	Dir         string
	PagesPath   string
	HandlerPath string
	Missing     []string // required file names not found in Dir
}

func (s Site) Complete() bool {
	return len(s.Missing) == 0
}

// PageEntry is one row of a site's page list.
type PageEntry struct {
	Index    int
	Nickname string
	URL      string
	Browser  string
	Extra    map[string]string // optional extraction hints, e.g. html_id_1, html_class_1
}

// Field returns the trimmed value of an optional column. Empty cells are reported as absent.
func (p PageEntry) Field(name string) (string, bool) {
	v, ok := p.Extra[name]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

type SiteState int

const (
	Discovered SiteState = iota
	Validated
	OutputDirReady
	Processing
	Completed
	Aborted
)

func (s SiteState) String() string {
	return [...]string{"discovered", "validated", "output dir ready", "processing", "completed", "aborted"}[s]
}

var unsafeNameChars = strings.NewReplacer(
	" ", "_", ".", "_", ",", "_", "!", "_", "*", "_", "/", "_", "+", "_",
	":", "_", ";", "_", "\\", "_", "$", "_", "£", "_", "€", "_", "@", "_",
)

// SanitizeName replaces characters that are unsafe in file paths and logger names with underscores.
func SanitizeName(name string) string {
	return unsafeNameChars.Replace(name)
}
