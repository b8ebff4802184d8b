package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// APIError is a non-2xx reply. Status is the server's "status" field.
type APIError struct {
	Code   int
	Status string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Status)
}

// HTTPClient makes REST calls to fc-admin.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8181").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		// Starting a session waits for the remote agent.
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// StartSession sends POST /session/start.
func (c *HTTPClient) StartSession(host string) error {
	return c.post("/session/start", map[string]string{"host": host}, nil)
}

// StopSession sends POST /session/stop.
func (c *HTTPClient) StopSession() error {
	return c.post("/session/stop", nil, nil)
}

// Session fetches GET /session.
func (c *HTTPClient) Session() (*Session, error) {
	var s Session
	if err := c.get("/session", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Changes fetches the sorted dump of namespace.
func (c *HTTPClient) Changes(namespace string) ([]Change, error) {
	var out []Change
	if err := c.get("/session/changes/"+url.PathEscape(namespace), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Select commits the selected indices per namespace and returns the deploy id.
func (c *HTTPClient) Select(selection map[string][]int) (string, error) {
	var out struct {
		UUID string `json:"uuid"`
	}
	if err := c.post("/session/select", map[string]any{"sel": selection}, &out); err != nil {
		return "", err
	}
	return out.UUID, nil
}

// Save turns deploy id into a profile.
func (c *HTTPClient) Save(id string, form ProfileForm) (string, error) {
	var out struct {
		UID string `json:"uid"`
	}
	if err := c.post("/profiles/save/"+url.PathEscape(id), form, &out); err != nil {
		return "", err
	}
	return out.UID, nil
}

// Discard drops deploy id.
func (c *HTTPClient) Discard(id string) error {
	return c.post("/profiles/discard/"+url.PathEscape(id), nil, nil)
}

// Profiles fetches the profile index.
func (c *HTTPClient) Profiles() ([]IndexEntry, error) {
	var out []IndexEntry
	if err := c.get("/profiles/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(path string, body any, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var reply struct {
			Status string `json:"status"`
		}
		if json.Unmarshal(data, &reply) != nil || reply.Status == "" {
			reply.Status = string(bytes.TrimSpace(data))
		}
		return &APIError{Code: resp.StatusCode, Status: reply.Status}
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}
