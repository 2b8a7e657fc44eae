package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cbsinteractive/conversion-client/job"
)

// Client exposes the conversion service's API. Calls are stateless and
// independently retryable; nothing is cached between them.
type Client interface {
	// Jobs
	CreateJob(ctx context.Context, format job.Format, fileCount int) (job.ID, error)
	FetchJob(ctx context.Context, id job.ID) (job.Info, error)
	FetchLog(ctx context.Context, id job.ID) (string, error)

	// Slots
	ProbeInput(ctx context.Context, id job.ID, n int) job.Probe
	UploadInput(ctx context.Context, id job.ID, n int, p job.Payload) error
	DownloadInput(ctx context.Context, id job.ID, n int) (job.Payload, error)
	DownloadOutput(ctx context.Context, id job.ID, n int) (job.Payload, error)
}

const (
	defaultTimeout = 30 * time.Second
	defaultBaseURL = "http://localhost:6969/api"
)

// CreateJobRequest is the body of POST /convert
type CreateJobRequest struct {
	OutputFormat job.Format `json:"output_format"`
	FileCount    int        `json:"file_count"`
}

// CreateJobResponse is the reply to POST /convert
type CreateJobResponse struct {
	ID job.ID `json:"id"`
}

type DefaultClient struct {
	BaseURL *url.URL
	Client  *http.Client
}

// New returns a DefaultClient talking to base. An empty base selects the
// default local endpoint.
func New(base string, timeout time.Duration) (*DefaultClient, error) {
	c := &DefaultClient{}
	if base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, err
		}
		c.BaseURL = u
	}
	if timeout > 0 {
		c.Client = &http.Client{Timeout: timeout}
	}
	c.ensure()
	return c, nil
}

// CreateJob registers a new conversion job expecting fileCount inputs
func (c *DefaultClient) CreateJob(ctx context.Context, format job.Format, fileCount int) (job.ID, error) {
	c.ensure()

	var resp CreateJobResponse
	err := c.postResource(ctx, CreateJobRequest{OutputFormat: format, FileCount: fileCount}, &resp, "/convert")
	if err != nil {
		return "", err
	}

	return resp.ID, nil
}

// FetchJob returns the job's status and declared file count
func (c *DefaultClient) FetchJob(ctx context.Context, id job.ID) (job.Info, error) {
	c.ensure()

	var info job.Info
	err := c.getResource(ctx, &info, jobPath(id))
	if err != nil {
		return job.Info{}, err
	}

	return info, nil
}

// FetchLog returns the job's conversion log. ErrUnavailable means the
// server has not produced one.
func (c *DefaultClient) FetchLog(ctx context.Context, id job.ID) (string, error) {
	c.ensure()

	p, err := c.download(ctx, jobPath(id)+"/log")
	if err != nil {
		if IsNotFound(err) {
			return "", ErrUnavailable
		}
		return "", err
	}

	return string(p.Data), nil
}

// ProbeInput asks whether input n exists without transferring it
func (c *DefaultClient) ProbeInput(ctx context.Context, id job.ID, n int) job.Probe {
	c.ensure()

	resp, err := c.do(ctx, http.MethodHead, slotPath(id, job.Input, n), nil, "")
	if err != nil {
		return job.ProbeFailed(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return job.Absent()
	case resp.StatusCode/100 == 2:
		return job.Present(resp.Header.Get("Content-Type"))
	}
	return job.ProbeFailed(statusError(resp))
}

// UploadInput stores p as input n
func (c *DefaultClient) UploadInput(ctx context.Context, id job.ID, n int, p job.Payload) error {
	c.ensure()

	resp, err := c.do(ctx, http.MethodPut, slotPath(id, job.Input, n), p.Data, p.ContentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return statusError(resp)
	}
	return nil
}

// DownloadInput fetches input n as it was uploaded
func (c *DefaultClient) DownloadInput(ctx context.Context, id job.ID, n int) (job.Payload, error) {
	c.ensure()
	return c.download(ctx, slotPath(id, job.Input, n))
}

// DownloadOutput fetches the converted file for slot n
func (c *DefaultClient) DownloadOutput(ctx context.Context, id job.ID, n int) (job.Payload, error) {
	c.ensure()
	return c.download(ctx, slotPath(id, job.Output, n))
}

func (c *DefaultClient) ensure() {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: defaultTimeout}
	}

	if c.BaseURL == nil {
		c.BaseURL = urlMust(url.Parse(defaultBaseURL))
	}
}

func jobPath(id job.ID) string {
	return "/convert/" + url.PathEscape(string(id))
}

func slotPath(id job.ID, w job.Which, n int) string {
	return jobPath(id) + "/" + w.String() + "/" + strconv.Itoa(n)
}

func urlMust(u *url.URL, _ error) *url.URL { return u }
