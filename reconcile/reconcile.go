// Package reconcile maps a job's status and a slot's probe result onto the
// slot's display state and the actions it allows. It is the only place
// that decision is made.
package reconcile

import (
	"github.com/cbsinteractive/conversion-client/job"
	"github.com/pkg/errors"
)

var (
	// ErrInconsistent marks a status/probe pair the server should never
	// produce, e.g. a completed job with a missing input.
	ErrInconsistent = errors.New("inconsistent job state")

	// ErrUnknownStatus is returned when the job status is not one we know
	ErrUnknownStatus = errors.New("unknown job status")
)

// Result is a slot's derived state
type Result struct {
	Input   InputState
	Output  OutputState
	Actions Actions
}

type family int

const (
	familyUnknown family = iota
	familyPending
	familyRunning
	familyCompleted
	familyFailed
	nfamily
)

func familyOf(s job.Status) family {
	switch {
	case s.Pending():
		return familyPending
	case s.Failed():
		return familyFailed
	case s == job.StatusRunning:
		return familyRunning
	case s == job.StatusCompleted:
		return familyCompleted
	}
	return familyUnknown
}

type entry struct {
	Result
	err error
}

// unknown is the row for an inconclusive probe. The controller re-probes
// on the next refresh; it never reads this as a missing file.
var unknown = entry{Result: Result{InputUnknown, OutputUnknown, None}}

// table is indexed by [family][probe kind]
var table = [nfamily][3]entry{
	familyPending: {
		job.ProbeAbsent:  {Result: Result{InputNotUploaded, OutputNotStarted, Upload}},
		job.ProbePresent: {Result: Result{InputUploaded, OutputNotStarted, DownloadInput}},
		job.ProbeError:   unknown,
	},
	familyFailed: {
		job.ProbeAbsent:  {Result: Result{InputUnavailable, OutputFailed, None}},
		job.ProbePresent: {Result: Result{InputUploaded, OutputFailed, DownloadInput}},
		job.ProbeError:   unknown,
	},
	familyRunning: {
		job.ProbeAbsent:  {Result: Result{InputUnavailable, OutputUnknown, None}, err: ErrInconsistent},
		job.ProbePresent: {Result: Result{InputUploaded, OutputRunning, DownloadInput}},
		job.ProbeError:   unknown,
	},
	familyCompleted: {
		job.ProbeAbsent:  {Result: Result{InputUnavailable, OutputUnknown, None}, err: ErrInconsistent},
		job.ProbePresent: {Result: Result{InputUploaded, OutputConverted, DownloadInput | DownloadOutput}},
		job.ProbeError:   unknown,
	},
	familyUnknown: {
		job.ProbeAbsent:  {Result: Result{InputNotUploaded, OutputUnknown, None}, err: ErrUnknownStatus},
		job.ProbePresent: {Result: Result{InputUploaded, OutputUnknown, DownloadInput}, err: ErrUnknownStatus},
		job.ProbeError:   unknown,
	},
}

// Reconcile returns the slot state for a job status and a probe of the
// slot's input. It is defined for every pair. A non-nil error comes with
// a usable Result and flags a pair that should be logged and surfaced.
func Reconcile(status job.Status, probe job.Probe) (Result, error) {
	kind := probe.Kind
	if kind < job.ProbeAbsent || kind > job.ProbeError {
		kind = job.ProbeError
	}
	e := table[familyOf(status)][kind]
	if e.err != nil {
		return e.Result, errors.Wrapf(e.err, "status %s with %s input", status, kind)
	}
	return e.Result, nil
}

// Initial is the state of a slot in a job that was just created: nothing
// uploaded yet, so uploads are open.
func Initial() Result {
	return table[familyPending][job.ProbeAbsent].Result
}

// Local is the state of a slot added before any job exists. Nothing can
// be transferred until the job is created.
func Local() Result {
	return Result{Input: InputNotUploaded, Output: OutputNotStarted, Actions: None}
}

// Label is the user-facing name of a job status
func Label(s job.Status) string {
	switch familyOf(s) {
	case familyPending:
		return "waiting"
	case familyRunning:
		return "running"
	case familyFailed:
		return string(s)
	case familyCompleted:
		return "completed"
	}
	return "unknown"
}
