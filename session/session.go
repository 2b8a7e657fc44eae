// Package session owns the state of one conversion job as seen from the
// client and keeps it in step with the server.
package session

import (
	"context"

	"github.com/cbsinteractive/conversion-client/job"
	"github.com/cbsinteractive/conversion-client/reconcile"
	"github.com/gofrs/uuid"
)

// Slot is one file position of the job
type Slot struct {
	Index int

	// LocalFormat is the content type the input will be uploaded as.
	// It can change until the input is uploaded.
	LocalFormat job.Format

	// Local is the picked file waiting to be uploaded, if any
	Local job.Payload

	// ContentType is what the server reported for the uploaded input
	ContentType string

	reconcile.Result

	// busy is set while an upload for the slot is in flight
	busy bool

	// token is bumped each time a request whose answer will overwrite
	// Result is issued. Answers carrying an older token are dropped.
	token uint64
}

// Session is the aggregate of everything known about the current job
type Session struct {
	// ID correlates log lines and exception reports of one session
	ID string

	JobID        job.ID
	Status       job.Status
	OutputFormat job.Format
	Slots        []*Slot

	// creating is set while the job is being created; slots are frozen
	creating bool

	// epoch changes whenever the session is rebound or reset, which
	// invalidates every request still in flight
	epoch uint64

	// fetches numbers status requests as they are issued; applied is the
	// newest one whose answer was used. Older answers are dropped.
	fetches uint64
	applied uint64
}

func newSession(epoch uint64) *Session {
	return &Session{ID: uuid.Must(uuid.NewV4()).String(), epoch: epoch}
}

// Bound is true once a job was created or found
func (s *Session) Bound() bool {
	return s.JobID != ""
}

func (s *Session) slot(i int) (*Slot, error) {
	if i < 0 || i >= len(s.Slots) {
		return nil, ErrSlotRange
	}
	return s.Slots[i], nil
}

// ticket identifies one state-changing request for one slot
type ticket struct {
	epoch uint64
	index int
	token uint64
}

// issue bumps the slot's token and returns a ticket for the new request
func (s *Session) issue(sl *Slot) ticket {
	sl.token++
	return ticket{epoch: s.epoch, index: sl.Index, token: sl.token}
}

// current returns the ticket's slot if the ticket is still the latest
// request for it
func (s *Session) current(t ticket) (*Slot, bool) {
	if t.epoch != s.epoch || t.index < 0 || t.index >= len(s.Slots) {
		return nil, false
	}
	sl := s.Slots[t.index]
	return sl, sl.token == t.token
}

// NoticeLevel grades a user-facing notice
type NoticeLevel string

const (
	NoticeInfo    = NoticeLevel("info")
	NoticeWarning = NoticeLevel("warning")
	NoticeError   = NoticeLevel("error")
)

// Notice is a message for the user about the last operation
type Notice struct {
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
}

// SlotView is the read-only view of a slot
type SlotView struct {
	Index       int                   `json:"index"`
	LocalFormat job.Format            `json:"localFormat,omitempty"`
	Attached    string                `json:"attached,omitempty"`
	ContentType string                `json:"contentType,omitempty"`
	Input       reconcile.InputState  `json:"input"`
	Output      reconcile.OutputState `json:"output"`
	Actions     reconcile.Actions     `json:"actions"`
}

// Snapshot is the full session state handed to the view after a change.
// Version increases with every change.
type Snapshot struct {
	Version      uint64     `json:"version"`
	Session      string     `json:"session"`
	JobID        job.ID     `json:"jobId,omitempty"`
	Status       job.Status `json:"status,omitempty"`
	Label        string     `json:"label"`
	OutputFormat job.Format `json:"outputFormat,omitempty"`
	Slots        []SlotView `json:"slots"`
	Notice       *Notice    `json:"notice,omitempty"`
}

func (s *Session) view() Snapshot {
	snap := Snapshot{
		Session:      s.ID,
		JobID:        s.JobID,
		Status:       s.Status,
		Label:        "status",
		OutputFormat: s.OutputFormat,
		Slots:        make([]SlotView, 0, len(s.Slots)),
	}
	if s.Status != "" {
		snap.Label = reconcile.Label(s.Status)
	}
	for _, sl := range s.Slots {
		v := SlotView{
			Index:       sl.Index,
			LocalFormat: sl.LocalFormat,
			ContentType: sl.ContentType,
			Input:       sl.Input,
			Output:      sl.Output,
			Actions:     sl.Actions,
		}
		if !sl.Local.Empty() {
			v.Attached = sl.Local.Base()
			if sl.Local.Name == "" {
				v.Attached = "(unnamed)"
			}
		}
		snap.Slots = append(snap.Slots, v)
	}
	return snap
}

// Saver stores files the user downloads. It is the local save
// destination; the session never reads back what it saved.
type Saver interface {
	Save(ctx context.Context, name string, p job.Payload) error
}

// Notifier receives a snapshot after every state change. Calls are
// serialized and arrive in Version order. Notify may read the Controller
// with Snapshot but must not call its other methods on the same
// goroutine.
type Notifier interface {
	Notify(Snapshot)
}

// NotifierFunc adapts a function to a Notifier
type NotifierFunc func(Snapshot)

func (f NotifierFunc) Notify(s Snapshot) { f(s) }
