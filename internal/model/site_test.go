package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"amazon.co.uk", "amazon_co_uk"},
		{"generic one table", "generic_one_table"},
		{"a,b!c*d/e+f:g;h\\i$j£k€l@m", "a_b_c_d_e_f_g_h_i_j_k_l_m"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, SanitizeName(tt.input), tt.input)
	}
}

func TestPageEntryField(t *testing.T) {
	p := PageEntry{Extra: map[string]string{"html_id_1": " prices ", "html_class_1": "  "}}

	v, ok := p.Field("html_id_1")
	assert.True(t, ok)
	assert.Equal(t, "prices", v)

	_, ok = p.Field("html_class_1")
	assert.False(t, ok, "blank cell is absent")

	_, ok = p.Field("missing")
	assert.False(t, ok)
}

func TestSiteState(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "aborted", Aborted.String())
	assert.True(t, Site{}.Complete())
	assert.False(t, Site{Missing: []string{"pages.xlsx"}}.Complete())
}

func TestRunContextLoggerName(t *testing.T) {
	rc := &RunContext{AppName: "scraper"}
	assert.Equal(t, "scraper.worker.demo.home", rc.LoggerName("worker", "demo", "home"))
	assert.Equal(t, "scraper.worker", rc.LoggerName("worker", ""))
}
