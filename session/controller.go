package session

import (
	"context"
	"fmt"
	"io/ioutil"
	"strconv"
	"sync"

	"github.com/cbsinteractive/conversion-client/client"
	"github.com/cbsinteractive/conversion-client/exceptions"
	"github.com/cbsinteractive/conversion-client/job"
	"github.com/cbsinteractive/conversion-client/reconcile"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoJob      = errors.New("no job bound")
	ErrJobBound   = errors.New("a job is already bound")
	ErrSlotRange  = errors.New("no such slot")
	ErrSlotCount  = errors.New("bad file count")
	ErrNotAllowed = errors.New("action not allowed")
	ErrNoFile     = errors.New("no file attached")

	// ErrDiscarded is returned when the session was reset or rebound
	// while the operation's request was in flight. Its result was dropped.
	ErrDiscarded = errors.New("session changed, result discarded")
)

// Controller drives a Session: it issues requests through the client,
// reconciles the answers into slot state and tells the view about it.
// It is safe for concurrent use. Requests run without holding the state
// lock; their answers are applied only if they are still current.
type Controller struct {
	client   client.Client
	logger   *logrus.Logger
	reporter exceptions.Reporter
	saver    Saver
	notifier Notifier

	mu      sync.Mutex
	session *Session
	notice  *Notice
	version uint64

	// lookups counts LookupSession calls; only the latest may bind
	lookups uint64

	// notifyMu orders notifications. It is always taken before mu and
	// held until the change it covers has been delivered.
	notifyMu sync.Mutex
}

// Option configures a Controller
type Option func(*Controller)

func WithLogger(l *logrus.Logger) Option { return func(c *Controller) { c.logger = l } }
func WithReporter(r exceptions.Reporter) Option { return func(c *Controller) { c.reporter = r } }
func WithSaver(s Saver) Option { return func(c *Controller) { c.saver = s } }
func WithNotifier(n Notifier) Option { return func(c *Controller) { c.notifier = n } }

// New returns a Controller with an empty session
func New(cl client.Client, opts ...Option) *Controller {
	c := &Controller{client: cl}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.SetOutput(ioutil.Discard)
	}
	if c.reporter == nil {
		c.reporter = &exceptions.NoopReporter{}
	}
	if c.notifier == nil {
		c.notifier = NotifierFunc(func(Snapshot) {})
	}
	c.session = newSession(1)
	return c
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() Snapshot {
	snap := c.session.view()
	snap.Version = c.version
	if c.notice != nil {
		n := *c.notice
		snap.Notice = &n
	}
	return snap
}

// update runs fn with the state locked. If fn reports a change, the view
// is notified after mu is released, so Notify can call Snapshot.
func (c *Controller) update(fn func(s *Session) bool) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	changed := fn(c.session)
	var snap Snapshot
	if changed {
		c.version++
		snap = c.snapshot()
	}
	c.mu.Unlock()

	if changed {
		c.notifier.Notify(snap)
	}
}

// say sets the notice; it must be called with mu held
func (c *Controller) say(level NoticeLevel, format string, args ...interface{}) {
	c.notice = &Notice{Level: level, Text: fmt.Sprintf(format, args...)}
}

func (c *Controller) log(s *Session, op string) *logrus.Entry {
	f := logrus.Fields{"session": s.ID, "op": op}
	if s.Bound() {
		f["job_id"] = s.JobID
	}
	return c.logger.WithFields(f)
}

func (c *Controller) report(err error, s *Session, index int) {
	tags := exceptions.Tags{"session": s.ID, "job_id": string(s.JobID)}
	if index >= 0 {
		tags["slot"] = strconv.Itoa(index)
	}
	c.reporter.ReportException(err, tags)
}

// AddLocalSlot appends a slot before any job exists and returns its index
func (c *Controller) AddLocalSlot() (index int, err error) {
	c.update(func(s *Session) bool {
		if s.Bound() || s.creating {
			err = ErrJobBound
			return false
		}
		index = len(s.Slots)
		s.Slots = append(s.Slots, &Slot{Index: index, Result: reconcile.Local()})
		return true
	})
	return index, err
}

// AttachLocal attaches a picked file to a slot, to be uploaded on job
// creation or by RequestUpload. The slot's format defaults to the
// file's content type.
func (c *Controller) AttachLocal(index int, p job.Payload) (err error) {
	c.update(func(s *Session) bool {
		sl, e := s.slot(index)
		if e != nil {
			err = e
			return false
		}
		if s.Bound() && !sl.Actions.Has(reconcile.Upload) {
			err = errors.Wrapf(ErrNotAllowed, "attach to slot %d", index)
			return false
		}
		sl.Local = p
		if sl.LocalFormat == "" {
			sl.LocalFormat = job.Format(p.ContentType)
		}
		return true
	})
	return err
}

// SetLocalFormat chooses the content type a slot's input is uploaded as
func (c *Controller) SetLocalFormat(index int, f job.Format) (err error) {
	c.update(func(s *Session) bool {
		sl, e := s.slot(index)
		if e != nil {
			err = e
			return false
		}
		if sl.Input == reconcile.InputUploaded {
			err = errors.Wrapf(ErrNotAllowed, "slot %d is already uploaded", index)
			return false
		}
		sl.LocalFormat = f
		return true
	})
	return err
}

// ResetWorkspace drops the job and every slot. Requests still in flight
// are ignored when they complete.
func (c *Controller) ResetWorkspace() {
	c.update(func(s *Session) bool {
		c.log(s, "reset").Debug("workspace reset")
		c.session = newSession(s.epoch + 1)
		c.notice = nil
		return true
	})
}

// CreateSession creates a job for fileCount files converted to format,
// then uploads every slot that already has a file attached. Slots added
// with AddLocalSlot are kept; fileCount may not be smaller than their
// number.
func (c *Controller) CreateSession(ctx context.Context, format job.Format, fileCount int) error {
	var epoch uint64
	var err error
	c.update(func(s *Session) bool {
		switch {
		case s.Bound() || s.creating:
			err = ErrJobBound
		case fileCount < 1 || fileCount < len(s.Slots):
			err = errors.Wrapf(ErrSlotCount, "%d files for %d slots", fileCount, len(s.Slots))
		default:
			s.creating = true
		}
		epoch = s.epoch
		return false
	})
	if err != nil {
		return err
	}

	id, err := c.client.CreateJob(ctx, format, fileCount)

	var pending []upload
	c.update(func(s *Session) bool {
		if s.epoch != epoch {
			err = ErrDiscarded
			return false
		}
		s.creating = false
		logger := c.log(s, "create")
		if err != nil {
			logger.WithError(err).Error("creating job")
			c.say(NoticeError, "could not create job: %v", err)
			return true
		}
		if id == "" {
			err = errors.New("server returned an empty job id")
			logger.Error(err)
			c.say(NoticeError, "could not create job: %v", err)
			return true
		}

		s.epoch++
		s.JobID = id
		s.Status = job.StatusWaiting
		s.OutputFormat = format
		for len(s.Slots) < fileCount {
			s.Slots = append(s.Slots, &Slot{Index: len(s.Slots)})
		}
		for _, sl := range s.Slots {
			sl.Result = reconcile.Initial()
			if !sl.Local.Empty() {
				pending = append(pending, c.beginUpload(s, sl, sl.Local))
			}
		}
		c.log(s, "create").WithField("files", fileCount).Info("job created")
		c.say(NoticeInfo, "created job %s", id)
		return true
	})
	if err != nil {
		return errors.Wrap(err, "creating job")
	}

	var g errgroup.Group
	for _, u := range pending {
		u := u
		g.Go(func() error { return c.finishUpload(ctx, u) })
	}
	return g.Wait()
}

// LookupSession binds the session to an existing job and probes every
// slot. A job the server doesn't know leaves the session unbound; any
// other failure leaves the current session as it was.
func (c *Controller) LookupSession(ctx context.Context, id job.ID) error {
	var epoch, seq uint64
	c.update(func(s *Session) bool {
		c.lookups++
		epoch, seq = s.epoch, c.lookups
		return false
	})

	info, err := c.client.FetchJob(ctx, id)

	var round []ticket
	var status job.Status
	c.update(func(s *Session) bool {
		if s.epoch != epoch || c.lookups != seq {
			err = ErrDiscarded
			return false
		}
		logger := c.log(s, "lookup").WithField("job_id", id)
		if err == nil && info.TotalFiles < 0 {
			err = errors.Wrapf(ErrSlotCount, "server reported %d files", info.TotalFiles)
		}
		switch {
		case client.IsNotFound(err):
			logger.Info("job not found")
			c.session = newSession(s.epoch + 1)
			c.say(NoticeError, "not found: %s", id)
			return true
		case err != nil:
			logger.WithError(err).Error("fetching job")
			c.say(NoticeError, "could not look up job %s: %v", id, err)
			return true
		}

		s = newSession(s.epoch + 1)
		c.session = s
		s.JobID = id
		s.Status = info.Status
		s.Slots = make([]*Slot, info.TotalFiles)
		for i := range s.Slots {
			s.Slots[i] = &Slot{Index: i, Result: unprobed}
			round = append(round, s.issue(s.Slots[i]))
		}
		status = info.Status
		c.checkStatus(s, info.Status)
		c.notice = nil
		logger = c.log(s, "lookup")
		logger.WithFields(logrus.Fields{"status": info.Status, "files": info.TotalFiles}).Info("job found")
		return true
	})
	if err != nil {
		return errors.Wrapf(err, "looking up job %s", id)
	}

	c.probe(ctx, id, status, round)
	return nil
}

// RefreshStatus fetches the job status again and re-probes every slot.
// The number of slots never changes once a job is bound.
func (c *Controller) RefreshStatus(ctx context.Context) error {
	var epoch, seq uint64
	var id job.ID
	var err error
	c.update(func(s *Session) bool {
		if !s.Bound() {
			err = ErrNoJob
			return false
		}
		s.fetches++
		epoch, seq, id = s.epoch, s.fetches, s.JobID
		return false
	})
	if err != nil {
		return err
	}

	info, err := c.client.FetchJob(ctx, id)

	var round []ticket
	var status job.Status
	stale := false
	c.update(func(s *Session) bool {
		if s.epoch != epoch {
			err = ErrDiscarded
			return false
		}
		logger := c.log(s, "refresh")
		if seq < s.applied {
			logger.WithField("round", seq).Debug("dropping superseded status")
			stale = true
			return false
		}
		s.applied = seq
		if err != nil {
			if client.IsNotFound(err) {
				logger.Warn("job disappeared")
				c.session = newSession(s.epoch + 1)
				c.say(NoticeError, "not found: %s", id)
				return true
			}
			logger.WithError(err).Error("fetching job")
			c.say(NoticeError, "could not refresh job %s: %v", id, err)
			return true
		}

		if info.TotalFiles != len(s.Slots) {
			e := errors.Wrapf(ErrSlotCount, "server reports %d files, session has %d", info.TotalFiles, len(s.Slots))
			logger.Warn(e)
			c.report(e, s, -1)
		}
		s.Status = info.Status
		for _, sl := range s.Slots {
			// an upload in flight probes its slot when it completes
			if !sl.busy {
				round = append(round, s.issue(sl))
			}
		}
		status = info.Status
		c.checkStatus(s, info.Status)
		logger.WithField("status", info.Status).Debug("job refreshed")
		return true
	})
	if stale {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "refreshing job %s", id)
	}

	c.probe(ctx, id, status, round)
	return nil
}

// unprobed is a slot's state between creation and its first probe answer
var unprobed = reconcile.Result{
	Input:   reconcile.InputUnknown,
	Output:  reconcile.OutputUnknown,
	Actions: reconcile.None,
}

func (c *Controller) checkStatus(s *Session, st job.Status) {
	if job.ParseStatus(string(st)) != job.StatusUnknown {
		return
	}
	err := errors.Wrapf(reconcile.ErrUnknownStatus, "job %s", s.JobID)
	c.log(s, "status").Warn(err)
	c.report(err, s, -1)
}

// probe checks every ticket's slot concurrently. All probes of a round
// read the same job status.
func (c *Controller) probe(ctx context.Context, id job.ID, status job.Status, round []ticket) {
	var g errgroup.Group
	for _, t := range round {
		t := t
		g.Go(func() error {
			c.applyProbe(t, status, c.client.ProbeInput(ctx, id, t.index))
			return nil
		})
	}
	_ = g.Wait()
}

// applyProbe reconciles a probe answer into its slot if it is still the
// latest request for that slot
func (c *Controller) applyProbe(t ticket, status job.Status, p job.Probe) {
	c.update(func(s *Session) bool {
		logger := c.log(s, "probe").WithFields(logrus.Fields{"slot": t.index, "probe": p.Kind})
		sl, ok := s.current(t)
		if !ok {
			logger.Debug("dropping stale probe result")
			return false
		}
		if p.Kind == job.ProbeError {
			logger.WithError(p.Err).Warn("probe inconclusive, will retry on refresh")
		}

		r, err := reconcile.Reconcile(status, p)
		if err != nil && !errors.Is(err, reconcile.ErrUnknownStatus) {
			logger.Warn(err)
			c.report(err, s, t.index)
			c.say(NoticeWarning, "file %d: %v", t.index, err)
		}
		sl.Result = r
		if p.Kind == job.ProbePresent {
			sl.ContentType = p.ContentType
		}
		return true
	})
}

type upload struct {
	ticket
	id      job.ID
	payload job.Payload
	prev    reconcile.Result
}

// beginUpload closes the slot for uploads until the server answers. It
// must be called with mu held.
func (c *Controller) beginUpload(s *Session, sl *Slot, p job.Payload) upload {
	if p.ContentType == "" {
		p.ContentType = string(sl.LocalFormat)
	}
	u := upload{id: s.JobID, payload: p, prev: sl.Result}
	sl.Actions = sl.Actions.Without(reconcile.Upload)
	sl.busy = true
	u.ticket = s.issue(sl)
	return u
}

// finishUpload sends the file and then asks the server what it now has
// for the slot, rather than assuming the upload took.
func (c *Controller) finishUpload(ctx context.Context, u upload) error {
	err := c.client.UploadInput(ctx, u.id, u.index, u.payload)

	var next ticket
	var status job.Status
	var current bool
	c.update(func(s *Session) bool {
		logger := c.log(s, "upload").WithFields(logrus.Fields{"slot": u.index, "bytes": u.payload.Size()})
		sl, ok := s.current(u.ticket)
		if err != nil {
			logger.WithError(err).Error("upload failed")
			if !ok {
				return false
			}
			sl.busy = false
			sl.Result = u.prev
			c.say(NoticeError, "upload of file %d failed: %v", u.index, err)
			return true
		}
		logger.Info("uploaded")
		if !ok {
			return false
		}
		current = true
		sl.busy = false
		sl.LocalFormat = job.Format(u.payload.ContentType)
		sl.Local = job.Payload{}
		next, status = s.issue(sl), s.Status
		c.say(NoticeInfo, "uploaded file %d", u.index)
		return true
	})
	if err != nil {
		return errors.Wrapf(err, "uploading file %d", u.index)
	}
	if current {
		c.applyProbe(next, status, c.client.ProbeInput(ctx, u.id, u.index))
	}
	return nil
}

// RequestUpload uploads p, or the file attached to the slot when p is
// empty, as the slot's input. It is refused without a request when the
// slot does not currently allow uploads.
func (c *Controller) RequestUpload(ctx context.Context, index int, p job.Payload) error {
	var u upload
	var err error
	c.update(func(s *Session) bool {
		var sl *Slot
		if sl, err = c.allowed(s, index, reconcile.Upload); err != nil {
			return false
		}
		if p.Empty() {
			p = sl.Local
		}
		if p.Empty() {
			err = errors.Wrapf(ErrNoFile, "slot %d", index)
			return false
		}
		u = c.beginUpload(s, sl, p)
		return true
	})
	if err != nil {
		return err
	}
	return c.finishUpload(ctx, u)
}

// allowed looks up a slot of the bound job and checks that it allows the
// action. It must be called with mu held.
func (c *Controller) allowed(s *Session, index int, a reconcile.Actions) (*Slot, error) {
	if !s.Bound() {
		return nil, ErrNoJob
	}
	sl, err := s.slot(index)
	if err != nil {
		return nil, err
	}
	if !sl.Actions.Has(a) {
		return nil, errors.Wrapf(ErrNotAllowed, "%s on slot %d (allowed %s)", a, index, sl.Actions)
	}
	return sl, nil
}

// RequestDownload fetches a slot's input or output and hands it to the
// Saver under the name <job>_<slot>.<ext>
func (c *Controller) RequestDownload(ctx context.Context, index int, which job.Which) error {
	action := reconcile.DownloadInput
	download := c.client.DownloadInput
	if which == job.Output {
		action, download = reconcile.DownloadOutput, c.client.DownloadOutput
	}

	var id job.ID
	var err error
	c.update(func(s *Session) bool {
		_, err = c.allowed(s, index, action)
		id = s.JobID
		return false
	})
	if err != nil {
		return err
	}
	if c.saver == nil {
		return errors.New("no saver configured")
	}

	p, err := download(ctx, id, index)
	name := job.FileName(id, index, p)
	if err == nil {
		err = c.saver.Save(ctx, name, p)
	}

	c.update(func(s *Session) bool {
		logger := c.log(s, "download").WithFields(logrus.Fields{"slot": index, "which": which})
		if s.JobID != id {
			return false
		}
		switch {
		case client.IsNotFound(err):
			logger.WithError(err).Warn("file not found")
			c.say(NoticeError, "%s file %d not found", which, index)
		case err != nil:
			logger.WithError(err).Error("download failed")
			c.say(NoticeError, "download of %s file %d failed: %v", which, index, err)
		default:
			logger.WithField("name", name).Info("saved")
			c.say(NoticeInfo, "saved %s", name)
		}
		return true
	})
	if err != nil {
		return errors.Wrapf(err, "downloading %s file %d", which, index)
	}
	return nil
}

// FetchLog retrieves the job's conversion log, saves it as <job>_log.txt
// and returns it. A missing log is reported as a notice, not an error.
func (c *Controller) FetchLog(ctx context.Context) (string, error) {
	var id job.ID
	var err error
	c.update(func(s *Session) bool {
		if !s.Bound() {
			err = ErrNoJob
		}
		id = s.JobID
		return false
	})
	if err != nil {
		return "", err
	}

	text, err := c.client.FetchLog(ctx, id)
	unavailable := errors.Is(err, client.ErrUnavailable)
	saved := false
	if err == nil && c.saver != nil {
		err = c.saver.Save(ctx, job.LogName(id), job.Payload{ContentType: "text/plain", Data: []byte(text)})
		saved = err == nil
	}

	c.update(func(s *Session) bool {
		logger := c.log(s, "log")
		if s.JobID != id {
			return false
		}
		switch {
		case unavailable:
			logger.Info("log not available")
			c.say(NoticeWarning, "log file not available")
		case err != nil:
			logger.WithError(err).Error("fetching log")
			c.say(NoticeError, "could not fetch log: %v", err)
		case saved:
			c.say(NoticeInfo, "saved %s", job.LogName(id))
		default:
			c.say(NoticeInfo, "fetched log of job %s", id)
		}
		return true
	})
	if unavailable {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "fetching log")
	}
	return text, nil
}
