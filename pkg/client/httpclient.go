package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
)

type HttpClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewHttpClient(baseURL string) *HttpClient {
	return &HttpClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type Response struct {
	*http.Response
	Body []byte
}

func (r *Response) DecodeJSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// Request describes a single call. Token, when set, is sent as "Bearer <token>".
type Request struct {
	Method  string
	Path    string
	Body    any
	RawBody []byte
	Token   string
	Headers map[string]string
}

func (c *HttpClient) GET(ctx context.Context, path, token string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Token: token})
}

func (c *HttpClient) POST(ctx context.Context, path, token string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Token: token, Body: body})
}

func (c *HttpClient) PATCH(ctx context.Context, path, token string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Token: token, Body: body})
}

func (c *HttpClient) DELETE(ctx context.Context, path, token string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Token: token})
}

func (c *HttpClient) Do(ctx context.Context, r Request) (*Response, error) {
	var reqBody io.Reader
	hasBody := false

	switch {
	case r.RawBody != nil:
		reqBody = bytes.NewReader(r.RawBody)
		hasBody = true
	case r.Body != nil:
		jsonData, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
		hasBody = true
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.BaseURL+r.Path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if hasBody {
		req.Header.Set(headerContentType, contentTypeJSON)
	}
	if r.Token != "" {
		req.Header.Set(headerAuthorization, "Bearer "+r.Token)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		Response: resp,
		Body:     respBody,
	}, nil
}

func (c *HttpClient) WaitForHealthy(maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		resp, err := c.HTTPClient.Get(c.BaseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		<-ticker.C
	}

	return fmt.Errorf("service did not become healthy within %v", maxWait)
}

// GetErrorMessage extracts the message from a {"error":true,"message":...} body.
func GetErrorMessage(resp *Response) string {
	var errResp struct {
		Error   bool   `json:"error"`
		Message string `json:"message"`
	}
	if err := resp.DecodeJSON(&errResp); err != nil {
		return fmt.Sprintf("failed to unmarshal error: %v", err)
	}
	return errResp.Message
}
