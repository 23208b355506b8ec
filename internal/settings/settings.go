package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/IliaW/site-scrape-runner/internal/tabular"
	"github.com/patrickmn/go-cache"
)

// ErrConfigurationMissing means a settings table is absent or unusable. The run must not process any site.
var ErrConfigurationMissing = errors.New("configuration missing")

// Settings are loaded once per run and never modified afterwards.
type Settings struct {
	Allowed AllowedSet
	Headers *HeaderTable
}

// AllowedSet holds the HTTP status codes treated as a successful fetch.
type AllowedSet map[int]struct{}

func NewAllowedSet(codes ...int) AllowedSet {
	s := make(AllowedSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

func (s AllowedSet) Contains(code int) bool {
	_, ok := s[code]
	return ok
}

// Load reads the allowed responses table and the browser headers table from dir.
func Load(dir, allowedFile, headersFile string, log *slog.Logger) (*Settings, error) {
	allowedPath := filepath.Join(dir, allowedFile)
	log.Info("loading allowed http responses.", slog.String("file", allowedPath))
	allowedTable, err := tabular.Read(allowedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigurationMissing, allowedPath, err)
	}
	allowed, err := parseAllowed(allowedTable)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigurationMissing, allowedPath, err)
	}
	log.Info("allowed http responses loaded.", slog.Int("count", len(allowed)))

	headersPath := filepath.Join(dir, headersFile)
	log.Info("loading browser headers.", slog.String("file", headersPath))
	headersTable, err := tabular.Read(headersPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigurationMissing, headersPath, err)
	}
	headers, err := NewHeaderTable(headersTable)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigurationMissing, headersPath, err)
	}
	log.Info("browser headers loaded.", slog.Int("profiles", headers.Len()))

	return &Settings{Allowed: allowed, Headers: headers}, nil
}

// parseAllowed collects every numeric cell. A numeric header cell counts too, so a sheet without a
// header row doesn't lose its first code.
func parseAllowed(t *tabular.Table) (AllowedSet, error) {
	set := make(AllowedSet)
	add := func(cell string) {
		if code, ok := parseCode(cell); ok {
			set[code] = struct{}{}
		}
	}
	for _, c := range t.Columns {
		add(c)
	}
	for _, row := range t.Rows {
		for _, c := range row {
			add(c)
		}
	}
	if len(set) == 0 {
		return nil, errors.New("no status codes found")
	}
	return set, nil
}

func parseCode(cell string) (int, bool) {
	cell = strings.TrimSpace(cell)
	if code, err := strconv.Atoi(cell); err == nil {
		return code, code >= 100 && code <= 599
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	code := int(f)
	return code, code >= 100 && code <= 599
}

// OSFamily returns the override when set, otherwise linux, macos or windows for the running system.
func OSFamily(override string) string {
	if o := strings.ToLower(strings.TrimSpace(override)); o != "" {
		return o
	}
	if runtime.GOOS == "darwin" {
		return "macos"
	}
	return runtime.GOOS
}

// HeaderProfile is the set of request headers for one browser on one operating system family.
type HeaderProfile struct {
	Browser string
	OS      string
	Headers map[string]string
}

// HeaderTable keeps the profiles in file order. Resolved lookups are memoized for the run.
type HeaderTable struct {
	profiles []HeaderProfile
	memo     *cache.Cache
}

func NewHeaderTable(t *tabular.Table) (*HeaderTable, error) {
	browserIdx, osIdx := t.Index("browser"), t.Index("os")
	if browserIdx < 0 || osIdx < 0 {
		return nil, errors.New("headers table needs 'browser' and 'os' columns")
	}

	profiles := make([]HeaderProfile, 0, len(t.Rows))
	for _, row := range t.Rows {
		p := HeaderProfile{
			Browser: normalize(row[browserIdx]),
			OS:      normalize(row[osIdx]),
			Headers: make(map[string]string),
		}
		for i, col := range t.Columns {
			if i == browserIdx || i == osIdx || col == "" {
				continue
			}
			if v := strings.TrimSpace(row[i]); v != "" {
				p.Headers[HeaderName(col)] = v
			}
		}
		profiles = append(profiles, p)
	}

	return &HeaderTable{
		profiles: profiles,
		memo:     cache.New(cache.NoExpiration, 0),
	}, nil
}

func (h *HeaderTable) Len() int {
	return len(h.profiles)
}

type resolution struct {
	profile HeaderProfile
	found   bool
}

// Resolve returns the first profile matching browser and osFamily. Each (browser, os) pair is scanned once per
// run, misses included.
func (h *HeaderTable) Resolve(browser, osFamily string) (HeaderProfile, bool) {
	browser, osFamily = normalize(browser), normalize(osFamily)
	key := browser + "|" + osFamily
	if v, ok := h.memo.Get(key); ok {
		r := v.(resolution)
		return r.profile, r.found
	}
	r := resolution{}
	for _, p := range h.profiles {
		if p.Browser == browser && p.OS == osFamily {
			r = resolution{profile: p, found: true}
			break
		}
	}
	h.memo.Set(key, r, cache.NoExpiration)
	return r.profile, r.found
}

// Resolved reports how many distinct (browser, os) pairs were looked up.
func (h *HeaderTable) Resolved() int {
	return h.memo.ItemCount()
}

// HeaderName turns a column name such as "user_agent" into the HTTP header name "User-Agent".
func HeaderName(column string) string {
	return http.CanonicalHeaderKey(strings.ReplaceAll(strings.TrimSpace(column), "_", "-"))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
