package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is the conversion job's server-assigned identifier. The server may
// hand it out as a JSON number or a string; both decode to the same ID.
type ID string

func (id ID) String() string { return string(id) }

// UnmarshalJSON accepts "42" and 42 alike.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("job id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Status is the state of a conversion job as reported by the server.
type Status string

const (
	StatusUnknown   = Status("unknown")
	StatusStarted   = Status("started")
	StatusWaiting   = Status("waiting")
	StatusRunning   = Status("running")
	StatusCompleted = Status("completed")
	StatusFailed    = Status("failed")
	StatusErrored   = Status("errored")
)

// ParseStatus maps a wire value onto a Status. Anything the server sends
// that we don't recognize is StatusUnknown.
func ParseStatus(s string) Status {
	switch st := Status(s); st {
	case StatusStarted, StatusWaiting, StatusRunning,
		StatusCompleted, StatusFailed, StatusErrored:
		return st
	}
	return StatusUnknown
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseStatus(raw)
	return nil
}

// Pending is true for jobs that are waiting for their inputs.
// Started and Waiting are interchangeable.
func (s Status) Pending() bool {
	return s == StatusStarted || s == StatusWaiting
}

// Failed is true for both terminal failure states.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusErrored
}

// Done is true once the server will no longer change the job.
func (s Status) Done() bool {
	return s == StatusCompleted || s.Failed()
}

// Info is the server's view of a job.
type Info struct {
	Status     Status `json:"status"`
	TotalFiles int    `json:"total_files"`
}

// Format is a content type, used both for the job's output format and for
// the per-file input type. The server accepts free-form values; the
// constants below are the ones the converter understands natively.
type Format string

const (
	FormatSBML   = Format("sbml")
	FormatSBGN   = Format("sbgn")
	FormatEscher = Format("escher")
)

// Which picks one side of a slot's transfer.
type Which int

const (
	Input Which = iota
	Output
)

func (w Which) String() string {
	switch w {
	case Input:
		return "input"
	case Output:
		return "output"
	}
	return "which(" + strconv.Itoa(int(w)) + ")"
}
