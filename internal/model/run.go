package model

import (
	"strings"
	"time"
)

// RunContext carries the values every component needs for log correlation. It is created once in main
// and handed to constructors.
type RunContext struct {
	AppName   string
	LogsDir   string // today's log directory
	RunID     string
	StartedAt time.Time
}

// LoggerName joins the app name and parts into a dotted logger name, e.g. "scraper.worker.demo.home".
func (rc *RunContext) LoggerName(parts ...string) string {
	name := rc.AppName
	for _, p := range parts {
		if p == "" {
			continue
		}
		name += "." + p
	}
	return strings.TrimPrefix(name, ".")
}

type PageOutcome string

const (
	PageProcessed     PageOutcome = "processed"
	PageFetchFailed   PageOutcome = "fetch_failed"
	PageHandlerFailed PageOutcome = "handler_failed"
)

// PageEvent describes what happened to one page entry. It is published to kafka when the producer is enabled.
type PageEvent struct {
	RunID      string      `json:"run_id"`
	Site       string      `json:"site"`
	Nickname   string      `json:"nickname"`
	URL        string      `json:"url"`
	StatusCode int         `json:"status_code,omitempty"`
	Outcome    PageOutcome `json:"outcome"`
	Artifacts  []string    `json:"artifacts,omitempty"`
	Error      string      `json:"error,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}
