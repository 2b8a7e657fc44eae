package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/cbsinteractive/conversion-client/job"
	"github.com/pkg/errors"
)

// maxErrBody bounds how much of a failed response is kept for the error
const maxErrBody = 4096

func (c *DefaultClient) getResource(ctx context.Context, result interface{}, path string) error {
	return c.reqWithMethodAndPayload(ctx, http.MethodGet, path, result, nil)
}

func (c *DefaultClient) postResource(ctx context.Context, resource interface{}, result interface{}, path string) error {
	return c.reqWithMethodAndPayload(ctx, http.MethodPost, path, result, resource)
}

func (c *DefaultClient) reqWithMethodAndPayload(ctx context.Context, method string, path string, result interface{}, reqBody interface{}) error {
	var body []byte
	var contentType string

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		body, contentType = data, "application/json"
	}

	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return statusError(resp)
	}

	if result == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.Wrapf(err, "decoding %s %s response", method, path)
	}

	return nil
}

// download reads the whole body of a GET along with its content type
func (c *DefaultClient) download(ctx context.Context, path string) (job.Payload, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return job.Payload{}, err
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return job.Payload{}, statusError(resp)
	}

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return job.Payload{}, errors.Wrap(err, "reading response body")
	}

	return job.Payload{
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// do sends a request with an optional raw body. The caller owns the
// response body. Transport failures are wrapped with the method and path.
func (c *DefaultClient) do(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL.String()+path, rd)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s request", method)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}

	return resp, nil
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// statusError turns a non-2xx response into an error, keeping a bounded
// prefix of its body. A 404 satisfies errors.Is(err, ErrNotFound).
func statusError(resp *http.Response) error {
	b, _ := ioutil.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	return &RemoteError{
		Code:   resp.StatusCode,
		Status: resp.Status,
		Body:   string(b),
	}
}
