package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cbsinteractive/conversion-client/client"
	"github.com/cbsinteractive/conversion-client/exceptions"
	"github.com/cbsinteractive/conversion-client/job"
	"github.com/cbsinteractive/conversion-client/reconcile"
	"github.com/cbsinteractive/conversion-client/sink"
	"github.com/cbsinteractive/conversion-client/test"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// fakeClient is a conversion server held in memory
type fakeClient struct {
	mu sync.Mutex

	id      job.ID
	info    job.Info
	missing bool
	inputs  map[int]job.Payload
	outputs map[int]job.Payload
	log     *string

	createErr error
	fetchErr  error
	uploadErr error
	probeErr  map[int]error

	// fetchHook runs after a status fetch has read the state and before
	// it answers
	fetchHook func()

	// probeHook runs after a probe has read the state and before it
	// answers
	probeHook func(n int)

	uploads []int
	probes  int
	creates int
}

func newFake(id job.ID, status job.Status, files int) *fakeClient {
	return &fakeClient{
		id:      id,
		info:    job.Info{Status: status, TotalFiles: files},
		inputs:  map[int]job.Payload{},
		outputs: map[int]job.Payload{},
	}
}

func (f *fakeClient) CreateJob(_ context.Context, _ job.Format, n int) (job.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.info = job.Info{Status: job.StatusWaiting, TotalFiles: n}
	return f.id, nil
}

func (f *fakeClient) FetchJob(_ context.Context, id job.ID) (job.Info, error) {
	info, err := f.fetch(id)
	if f.fetchHook != nil {
		f.fetchHook()
	}
	return info, err
}

func (f *fakeClient) fetch(id job.ID) (job.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return job.Info{}, f.fetchErr
	}
	if f.missing || id != f.id {
		return job.Info{}, &client.RemoteError{Code: 404, Status: "404 Not Found"}
	}
	return f.info, nil
}

func (f *fakeClient) FetchLog(_ context.Context, id job.ID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.log == nil {
		return "", client.ErrUnavailable
	}
	return *f.log, nil
}

func (f *fakeClient) ProbeInput(_ context.Context, id job.ID, n int) job.Probe {
	p := f.probe(n)
	if f.probeHook != nil {
		f.probeHook(n)
	}
	return p
}

func (f *fakeClient) probe(n int) job.Probe {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if err := f.probeErr[n]; err != nil {
		return job.ProbeFailed(err)
	}
	if p, ok := f.inputs[n]; ok {
		return job.Present(p.ContentType)
	}
	return job.Absent()
}

func (f *fakeClient) UploadInput(_ context.Context, id job.ID, n int, p job.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, n)
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.inputs[n] = p
	return nil
}

func (f *fakeClient) DownloadInput(_ context.Context, id job.ID, n int) (job.Payload, error) {
	return f.download(f.inputs, n)
}

func (f *fakeClient) DownloadOutput(_ context.Context, id job.ID, n int) (job.Payload, error) {
	return f.download(f.outputs, n)
}

func (f *fakeClient) download(files map[int]job.Payload, n int) (job.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := files[n]
	if !ok {
		return job.Payload{}, &client.RemoteError{Code: 404, Status: "404 Not Found"}
	}
	return p, nil
}

func (f *fakeClient) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

type slotState struct {
	Input   reconcile.InputState
	Output  reconcile.OutputState
	Actions reconcile.Actions
}

func states(s Snapshot) []slotState {
	out := make([]slotState, len(s.Slots))
	for i, v := range s.Slots {
		out[i] = slotState{v.Input, v.Output, v.Actions}
	}
	return out
}

func sbml(name string) job.Payload {
	return job.Payload{Name: name, ContentType: "application/sbml+xml", Data: []byte("<sbml/>")}
}

func TestCreateThenUpload(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusWaiting, 0)
	c := New(fc)

	if err := c.CreateSession(ctx, job.FormatEscher, 2); err != nil {
		t.Fatal(err)
	}
	snap := c.Snapshot()
	if snap.JobID != "42" || snap.Label != "waiting" || snap.OutputFormat != job.FormatEscher {
		t.Errorf("unexpected snapshot after create: %+v", snap)
	}
	open := slotState{reconcile.InputNotUploaded, reconcile.OutputNotStarted, reconcile.Upload}
	if diff := cmp.Diff([]slotState{open, open}, states(snap)); diff != "" {
		t.Errorf("slots after create (-want +got):\n%s", diff)
	}

	if err := c.RequestUpload(ctx, 0, sbml("model.xml")); err != nil {
		t.Fatal(err)
	}
	want := []slotState{
		{reconcile.InputUploaded, reconcile.OutputNotStarted, reconcile.DownloadInput},
		open,
	}
	if diff := cmp.Diff(want, states(c.Snapshot())); diff != "" {
		t.Errorf("slots after upload (-want +got):\n%s", diff)
	}
	if h, w := c.Snapshot().Slots[0].ContentType, "application/sbml+xml"; h != w {
		t.Errorf("content type: have %q want %q", h, w)
	}
}

func TestLookupCompletedJob(t *testing.T) {
	ctx := context.Background()
	fc := newFake("7", job.StatusCompleted, 2)
	fc.inputs[0] = sbml("a.xml")
	fc.inputs[1] = sbml("b.xml")
	c := New(fc)

	if err := c.LookupSession(ctx, "7"); err != nil {
		t.Fatal(err)
	}
	done := slotState{reconcile.InputUploaded, reconcile.OutputConverted, reconcile.DownloadInput | reconcile.DownloadOutput}
	snap := c.Snapshot()
	if diff := cmp.Diff([]slotState{done, done}, states(snap)); diff != "" {
		t.Errorf("slots (-want +got):\n%s", diff)
	}
	if snap.Label != "completed" {
		t.Errorf("label: have %q want completed", snap.Label)
	}
}

func TestLookupNotFound(t *testing.T) {
	fc := newFake("7", job.StatusWaiting, 1)
	c := New(fc)

	if err := c.LookupSession(context.Background(), "8"); err == nil {
		t.Fatal("expected an error")
	} else if !client.IsNotFound(err) {
		t.Errorf("expected a not found error, got %v", err)
	}
	snap := c.Snapshot()
	if snap.JobID != "" || len(snap.Slots) != 0 {
		t.Errorf("session should stay unbound: %+v", snap)
	}
	if snap.Notice == nil || snap.Notice.Text != "not found: 8" {
		t.Errorf("unexpected notice %+v", snap.Notice)
	}
}

func TestFailedJobAllowsNoUpload(t *testing.T) {
	ctx := context.Background()
	fc := newFake("9", job.StatusErrored, 2)
	fc.inputs[0] = sbml("a.xml")
	c := New(fc)

	if err := c.LookupSession(ctx, "9"); err != nil {
		t.Fatal(err)
	}
	want := []slotState{
		{reconcile.InputUploaded, reconcile.OutputFailed, reconcile.DownloadInput},
		{reconcile.InputUnavailable, reconcile.OutputFailed, reconcile.None},
	}
	if diff := cmp.Diff(want, states(c.Snapshot())); diff != "" {
		t.Errorf("slots (-want +got):\n%s", diff)
	}

	err := c.RequestUpload(ctx, 1, sbml("b.xml"))
	if !errors.Is(err, ErrNotAllowed) {
		t.Errorf("have %v want ErrNotAllowed", err)
	}
	if n := fc.uploadCount(); n != 0 {
		t.Errorf("a refused upload must not reach the server, got %d uploads", n)
	}
	if !errors.Is(c.RequestDownload(ctx, 1, job.Output), ErrNotAllowed) {
		t.Error("output download should be refused on a failed job")
	}
}

func TestProbeErrorIsNotAbsent(t *testing.T) {
	ctx := context.Background()
	fc := newFake("5", job.StatusWaiting, 1)
	fc.probeErr = map[int]error{0: errors.New("503 Service Unavailable")}
	c := New(fc)

	if err := c.LookupSession(ctx, "5"); err != nil {
		t.Fatal(err)
	}
	want := []slotState{{reconcile.InputUnknown, reconcile.OutputUnknown, reconcile.None}}
	if diff := cmp.Diff(want, states(c.Snapshot())); diff != "" {
		t.Errorf("slots (-want +got):\n%s", diff)
	}
	if !errors.Is(c.RequestUpload(ctx, 0, sbml("a.xml")), ErrNotAllowed) {
		t.Error("upload should be refused while the slot is unknown")
	}

	// the next refresh clears it
	fc.mu.Lock()
	fc.probeErr = nil
	fc.mu.Unlock()
	if err := c.RefreshStatus(ctx); err != nil {
		t.Fatal(err)
	}
	want = []slotState{{reconcile.InputNotUploaded, reconcile.OutputNotStarted, reconcile.Upload}}
	if diff := cmp.Diff(want, states(c.Snapshot())); diff != "" {
		t.Errorf("slots after refresh (-want +got):\n%s", diff)
	}
}

func TestUploadOnCreate(t *testing.T) {
	ctx := context.Background()
	fc := newFake("11", job.StatusWaiting, 0)
	c := New(fc)

	for i := 0; i < 2; i++ {
		if _, err := c.AddLocalSlot(); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.AttachLocal(1, sbml("b.xml")); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateSession(ctx, job.FormatSBGN, 1); !errors.Is(err, ErrSlotCount) {
		t.Errorf("fewer files than slots: have %v want ErrSlotCount", err)
	}
	if err := c.CreateSession(ctx, job.FormatSBGN, 3); err != nil {
		t.Fatal(err)
	}

	snap := c.Snapshot()
	if len(snap.Slots) != 3 {
		t.Fatalf("have %d slots want 3", len(snap.Slots))
	}
	fc.mu.Lock()
	uploads := append([]int(nil), fc.uploads...)
	fc.mu.Unlock()
	if diff := cmp.Diff([]int{1}, uploads); diff != "" {
		t.Errorf("uploads (-want +got):\n%s", diff)
	}
	if h := snap.Slots[1].Input; h != reconcile.InputUploaded {
		t.Errorf("slot 1: have %v want uploaded", h)
	}
	if snap.Slots[1].Attached != "" {
		t.Error("the attached file should be cleared once uploaded")
	}
	if h := snap.Slots[0].Actions; h != reconcile.Upload {
		t.Errorf("slot 0: have %v want {upload}", h)
	}

	if _, err := c.AddLocalSlot(); !errors.Is(err, ErrJobBound) {
		t.Errorf("have %v want ErrJobBound", err)
	}
	if err := c.CreateSession(ctx, job.FormatSBGN, 3); !errors.Is(err, ErrJobBound) {
		t.Errorf("have %v want ErrJobBound", err)
	}
}

func TestCreateFailure(t *testing.T) {
	fc := newFake("", job.StatusWaiting, 0)
	fc.createErr = errors.New("connection refused")
	c := New(fc)

	if err := c.CreateSession(context.Background(), job.FormatSBML, 1); err == nil {
		t.Fatal("expected an error")
	}
	snap := c.Snapshot()
	if snap.JobID != "" {
		t.Errorf("session should stay unbound, got job %q", snap.JobID)
	}
	if snap.Notice == nil || snap.Notice.Level != NoticeError {
		t.Errorf("expected an error notice, got %+v", snap.Notice)
	}
	// a new attempt is allowed
	fc.createErr = nil
	fc.id = "12"
	if err := c.CreateSession(context.Background(), job.FormatSBML, 1); err != nil {
		t.Fatal(err)
	}
}

func TestUploadFailureReopensSlot(t *testing.T) {
	ctx := context.Background()
	fc := newFake("13", job.StatusWaiting, 0)
	c := New(fc)
	if err := c.CreateSession(ctx, job.FormatSBML, 1); err != nil {
		t.Fatal(err)
	}

	fc.uploadErr = errors.New("413 Request Entity Too Large")
	if err := c.RequestUpload(ctx, 0, sbml("big.xml")); err == nil {
		t.Fatal("expected an error")
	}
	snap := c.Snapshot()
	if h := snap.Slots[0].Actions; h != reconcile.Upload {
		t.Errorf("upload should be allowed again, have %v", h)
	}
	if snap.Notice == nil || !strings.Contains(snap.Notice.Text, "upload of file 0 failed") {
		t.Errorf("unexpected notice %+v", snap.Notice)
	}
}

func TestUploadWithoutFile(t *testing.T) {
	ctx := context.Background()
	c := New(newFake("14", job.StatusWaiting, 0))
	if err := c.CreateSession(ctx, job.FormatSBML, 1); err != nil {
		t.Fatal(err)
	}
	test.AssertErrIs(c.RequestUpload(ctx, 0, job.Payload{}), ErrNoFile, "RequestUpload()", t)
	test.AssertErrIs(c.RequestUpload(ctx, 3, sbml("x")), ErrSlotRange, "RequestUpload()", t)
	if err := c.AttachLocal(0, sbml("later.xml")); err != nil {
		t.Fatal(err)
	}
	test.AssertErrIs(c.RequestUpload(ctx, 0, job.Payload{}), nil, "RequestUpload()", t)
	test.AssertErrIs(c.SetLocalFormat(0, job.FormatSBGN), ErrNotAllowed, "SetLocalFormat()", t)
}

func TestDownloadNames(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusCompleted, 1)
	fc.inputs[0] = job.Payload{ContentType: "application/sbml+xml", Data: []byte("<sbml/>")}
	fc.outputs[0] = job.Payload{ContentType: "application/json", Data: []byte("{}")}
	var saved sink.Memory
	c := New(fc, WithSaver(&saved))

	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}
	if err := c.RequestDownload(ctx, 0, job.Input); err != nil {
		t.Fatal(err)
	}
	if err := c.RequestDownload(ctx, 0, job.Output); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"42_0.json", "42_0.sbml"}, saved.Names()); diff != "" {
		t.Errorf("saved files (-want +got):\n%s", diff)
	}
	if p, _ := saved.Get("42_0.json"); string(p.Data) != "{}" {
		t.Errorf("output content: have %q", p.Data)
	}
	if n := c.Snapshot().Notice; n == nil || n.Text != "saved 42_0.json" {
		t.Errorf("unexpected notice %+v", n)
	}
}

func TestDownloadMissingOutput(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusCompleted, 1)
	fc.inputs[0] = sbml("a.xml")
	c := New(fc, WithSaver(&sink.Memory{}))
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}

	err := c.RequestDownload(ctx, 0, job.Output)
	if !client.IsNotFound(err) {
		t.Errorf("have %v want not found", err)
	}
	if n := c.Snapshot().Notice; n == nil || n.Text != "output file 0 not found" {
		t.Errorf("unexpected notice %+v", n)
	}
}

func TestFetchLog(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusFailed, 0)
	var saved sink.Memory
	c := New(fc, WithSaver(&saved))

	if _, err := c.FetchLog(ctx); !errors.Is(err, ErrNoJob) {
		t.Errorf("have %v want ErrNoJob", err)
	}
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}

	text, err := c.FetchLog(ctx)
	if err != nil || text != "" {
		t.Errorf("unavailable log: have %q, %v", text, err)
	}
	if n := c.Snapshot().Notice; n == nil || n.Text != "log file not available" || n.Level != NoticeWarning {
		t.Errorf("unexpected notice %+v", n)
	}

	log := "converting...\nfailed"
	fc.mu.Lock()
	fc.log = &log
	fc.mu.Unlock()
	if text, err = c.FetchLog(ctx); err != nil || text != log {
		t.Errorf("have %q, %v want %q", text, err, log)
	}
	if p, ok := saved.Get("42_log.txt"); !ok || string(p.Data) != log {
		t.Errorf("log not saved: %v", saved.Names())
	}
}

func TestRefreshKeepsSlotCount(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusWaiting, 2)
	rec := &exceptions.Recorder{}
	c := New(fc, WithReporter(rec))
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}

	fc.mu.Lock()
	fc.info.TotalFiles = 5
	fc.mu.Unlock()
	if err := c.RefreshStatus(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(c.Snapshot().Slots); n != 2 {
		t.Errorf("have %d slots want 2", n)
	}
	reports := rec.Reports()
	if len(reports) != 1 || !errors.Is(reports[0].Err, ErrSlotCount) {
		t.Fatalf("unexpected reports %+v", reports)
	}
	if reports[0].Tags["job_id"] != "42" {
		t.Errorf("missing job tag: %v", reports[0].Tags)
	}
}

func TestRefreshJobGone(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusWaiting, 1)
	c := New(fc)
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}
	fc.mu.Lock()
	fc.missing = true
	fc.mu.Unlock()

	if err := c.RefreshStatus(ctx); !client.IsNotFound(err) {
		t.Errorf("have %v want not found", err)
	}
	if c.Snapshot().JobID != "" {
		t.Error("session should be unbound")
	}
	if err := c.RefreshStatus(ctx); !errors.Is(err, ErrNoJob) {
		t.Errorf("have %v want ErrNoJob", err)
	}
}

func TestInconsistentStateIsReported(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusCompleted, 1)
	rec := &exceptions.Recorder{}
	c := New(fc, WithReporter(rec))

	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}
	want := []slotState{{reconcile.InputUnavailable, reconcile.OutputUnknown, reconcile.None}}
	if diff := cmp.Diff(want, states(c.Snapshot())); diff != "" {
		t.Errorf("slots (-want +got):\n%s", diff)
	}
	reports := rec.Reports()
	if len(reports) != 1 || !errors.Is(reports[0].Err, reconcile.ErrInconsistent) {
		t.Fatalf("unexpected reports %+v", reports)
	}
	if reports[0].Tags["slot"] != "0" {
		t.Errorf("missing slot tag: %v", reports[0].Tags)
	}
	if n := c.Snapshot().Notice; n == nil || n.Level != NoticeWarning {
		t.Errorf("expected a warning notice, got %+v", n)
	}
}

func TestUnknownStatusReportedOnce(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.Status("paused"), 3)
	rec := &exceptions.Recorder{}
	c := New(fc, WithReporter(rec))

	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}
	reports := rec.Reports()
	if len(reports) != 1 || !errors.Is(reports[0].Err, reconcile.ErrUnknownStatus) {
		t.Fatalf("unexpected reports %+v", reports)
	}
	if l := c.Snapshot().Label; l != "unknown" {
		t.Errorf("label: have %q want unknown", l)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusRunning, 2)
	fc.inputs[0] = sbml("a.xml")
	fc.inputs[1] = sbml("b.xml")
	c := New(fc)
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}

	first := states(c.Snapshot())
	if err := c.RefreshStatus(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, states(c.Snapshot())); diff != "" {
		t.Errorf("refresh changed unchanged state (-first +second):\n%s", diff)
	}
}

func TestStaleProbeIsDropped(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusWaiting, 1)
	c := New(fc)
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fc.probeHook = func(int) {
		first := false
		once.Do(func() { first = true })
		if first {
			close(started)
			<-release
		}
	}

	// the first refresh sees no input but answers last
	slow := make(chan error)
	go func() { slow <- c.RefreshStatus(ctx) }()
	<-started

	fc.mu.Lock()
	fc.inputs[0] = sbml("a.xml")
	fc.mu.Unlock()
	if err := c.RefreshStatus(ctx); err != nil {
		t.Fatal(err)
	}
	close(release)
	if err := <-slow; err != nil {
		t.Fatal(err)
	}

	want := []slotState{{reconcile.InputUploaded, reconcile.OutputNotStarted, reconcile.DownloadInput}}
	if diff := cmp.Diff(want, states(c.Snapshot())); diff != "" {
		t.Errorf("slots (-want +got):\n%s", diff)
	}
}

func TestApplyProbeDropsOldTicket(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusWaiting, 1)
	fc.inputs[0] = sbml("a.xml")
	c := New(fc)
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}

	c.mu.Lock()
	old := c.session.issue(c.session.Slots[0])
	newer := c.session.issue(c.session.Slots[0])
	c.mu.Unlock()

	c.applyProbe(newer, job.StatusWaiting, job.Present("application/sbml+xml"))
	before := c.Snapshot().Version
	c.applyProbe(old, job.StatusWaiting, job.Absent())

	snap := c.Snapshot()
	if snap.Version != before {
		t.Error("a stale answer must not notify")
	}
	if h := snap.Slots[0].Input; h != reconcile.InputUploaded {
		t.Errorf("stale answer overwrote the slot: %v", h)
	}
}

func TestResetDropsInFlight(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusWaiting, 1)
	c := New(fc)
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	fc.probeHook = func(int) {
		close(started)
		<-release
	}
	done := make(chan error)
	go func() { done <- c.RefreshStatus(ctx) }()
	<-started
	c.ResetWorkspace()
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	snap := c.Snapshot()
	if snap.JobID != "" || len(snap.Slots) != 0 {
		t.Errorf("reset session was modified by an old answer: %+v", snap)
	}
}

func TestNotificationsAreOrdered(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusCompleted, 4)
	for i := 0; i < 4; i++ {
		fc.inputs[i] = sbml("x.xml")
	}

	var mu sync.Mutex
	var versions []uint64
	c := New(fc, WithNotifier(NotifierFunc(func(s Snapshot) {
		mu.Lock()
		versions = append(versions, s.Version)
		mu.Unlock()
	})))
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}
	if err := c.RefreshStatus(ctx); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(versions) == 0 {
		t.Fatal("no notifications")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] != versions[i-1]+1 {
			t.Fatalf("notifications out of order: %v", versions)
		}
	}
	if last := versions[len(versions)-1]; last != c.Snapshot().Version {
		t.Errorf("last notification %d, snapshot at %d", last, c.Snapshot().Version)
	}
}

func TestStaleStatusIsDropped(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusRunning, 1)
	fc.inputs[0] = sbml("a.xml")
	c := New(fc)
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fc.fetchHook = func() {
		first := false
		once.Do(func() { first = true })
		if first {
			close(started)
			<-release
		}
	}

	// the first refresh reads "running" but answers after the second
	// one has seen the job complete
	slow := make(chan error)
	go func() { slow <- c.RefreshStatus(ctx) }()
	<-started

	fc.mu.Lock()
	fc.info.Status = job.StatusCompleted
	fc.mu.Unlock()
	if err := c.RefreshStatus(ctx); err != nil {
		t.Fatal(err)
	}
	close(release)
	if err := <-slow; err != nil {
		t.Fatal(err)
	}

	snap := c.Snapshot()
	if snap.Status != job.StatusCompleted {
		t.Errorf("status: have %s want completed", snap.Status)
	}
	want := []slotState{{reconcile.InputUploaded, reconcile.OutputConverted, reconcile.DownloadInput | reconcile.DownloadOutput}}
	if diff := cmp.Diff(want, states(snap)); diff != "" {
		t.Errorf("slots (-want +got):\n%s", diff)
	}
}

func TestUploadThenProbeError(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusWaiting, 0)
	c := New(fc)
	if err := c.CreateSession(ctx, job.FormatSBML, 1); err != nil {
		t.Fatal(err)
	}

	fc.mu.Lock()
	fc.probeErr = map[int]error{0: errors.New("502 Bad Gateway")}
	fc.mu.Unlock()
	if err := c.RequestUpload(ctx, 0, sbml("a.xml")); err != nil {
		t.Fatal(err)
	}
	want := []slotState{{reconcile.InputUnknown, reconcile.OutputUnknown, reconcile.None}}
	if diff := cmp.Diff(want, states(c.Snapshot())); diff != "" {
		t.Errorf("slots after upload (-want +got):\n%s", diff)
	}

	fc.mu.Lock()
	fc.probeErr = nil
	fc.mu.Unlock()
	if err := c.RefreshStatus(ctx); err != nil {
		t.Fatal(err)
	}
	want = []slotState{{reconcile.InputUploaded, reconcile.OutputNotStarted, reconcile.DownloadInput}}
	if diff := cmp.Diff(want, states(c.Snapshot())); diff != "" {
		t.Errorf("slots after refresh (-want +got):\n%s", diff)
	}
}

func TestLookupFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusWaiting, 2)
	c := New(fc)
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}

	fc.mu.Lock()
	fc.fetchErr = &client.RemoteError{Code: 503, Status: "503 Service Unavailable"}
	fc.mu.Unlock()
	if err := c.LookupSession(ctx, "43"); !client.IsRemote(err) {
		t.Errorf("have %v want a remote error", err)
	}
	snap := c.Snapshot()
	if snap.JobID != "42" || len(snap.Slots) != 2 {
		t.Errorf("session should still be bound to 42: %+v", snap)
	}
	if snap.Notice == nil || snap.Notice.Level != NoticeError {
		t.Errorf("expected an error notice, got %+v", snap.Notice)
	}

	fc.mu.Lock()
	fc.fetchErr = nil
	fc.mu.Unlock()
	test.AssertErrIs(c.RefreshStatus(ctx), nil, "RefreshStatus()", t)
}

func TestNotifyCanReadSnapshot(t *testing.T) {
	fc := newFake("42", job.StatusCompleted, 16)
	for i := 0; i < 16; i++ {
		fc.inputs[i] = sbml("x.xml")
	}

	var c *Controller
	c = New(fc, WithNotifier(NotifierFunc(func(s Snapshot) {
		time.Sleep(time.Millisecond)
		if h := c.Snapshot().Version; h < s.Version {
			t.Errorf("snapshot version %d behind notified %d", h, s.Version)
		}
	})))

	done := make(chan error, 1)
	go func() { done <- c.LookupSession(context.Background(), "42") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("LookupSession did not return while Notify read the snapshot")
	}
	if n := len(c.Snapshot().Slots); n != 16 {
		t.Errorf("have %d slots want 16", n)
	}
}
