package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHTTPTimeout = 10 * time.Second

// RequestOpts captures inputs for a third-party API call.
type RequestOpts struct {
	Method  string
	URL     string
	Query   map[string]string
	JSON    any
	Form    url.Values
	Headers map[string]string
}

// Response bundles the HTTP response metadata.
type Response struct {
	Status int
	Body   []byte
	Header http.Header
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// doRequest executes opts with client. name labels errors.
func doRequest(ctx context.Context, client *http.Client, name string, opts RequestOpts) (*Response, error) {
	target := opts.URL
	if len(opts.Query) > 0 {
		q := url.Values{}
		for k, v := range opts.Query {
			q.Set(k, v)
		}
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + q.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case opts.JSON != nil:
		payload, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", name, err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	case opts.Form != nil:
		body = strings.NewReader(opts.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", name, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute %s request: %w", name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", name, err)
	}

	return &Response{Status: resp.StatusCode, Body: respBody, Header: resp.Header.Clone()}, nil
}
