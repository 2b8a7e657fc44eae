// Package exceptions sends errors that need a human's attention, such as
// the server reporting a job state that cannot happen, to an external
// tracker.
package exceptions

import (
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

const defaultFlushTimeout = time.Second * 5

// Tags annotate a reported exception, e.g. with the job id and slot
type Tags map[string]string

// Reporter sends exceptions to an external source
type Reporter interface {
	ReportException(err error, tags Tags)
}

// NoopReporter is a no-op exception reporter
type NoopReporter struct{}

// ReportException does nothing
func (r *NoopReporter) ReportException(error, Tags) {}

// SentryReporter is a Reporter that sends error information to Sentry
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter creates and returns an instance of SentryReporter
func NewSentryReporter(dsn, env string) (*SentryReporter, error) {
	c, err := sentry.NewClient(sentry.ClientOptions{Dsn: dsn, Environment: env})
	if err != nil {
		return nil, err
	}

	return &SentryReporter{hub: sentry.NewHub(c, sentry.NewScope())}, nil
}

// ReportException will send errors to Sentry, tagged
func (r *SentryReporter) ReportException(err error, tags Tags) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

// Flush waits for queued events to be delivered
func (r *SentryReporter) Flush() bool {
	return r.hub.Flush(defaultFlushTimeout)
}

// Recorder keeps reported exceptions in memory. Tests use it to check
// what would have been sent.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

type Report struct {
	Err  error
	Tags Tags
}

func (r *Recorder) ReportException(err error, tags Tags) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Err: err, Tags: tags})
}

// Reports returns a copy of everything reported so far
func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.reports...)
}
