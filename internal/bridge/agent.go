// Package bridge connects the admin server to the session agent on a
// managed host and tunnels the host's remote desktop to the browser.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var ErrUnreachable = errors.New("could not connect to host")

// StatusError is a non-2xx reply from the session agent. Message is the
// agent's "status" field, or the raw body when it is not JSON.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent replied %d: %s", e.Code, e.Message)
}

const maxAgentReply = 64 << 10

// AgentClient calls the session agent's /session/start and /session/stop
// routes on a managed host.
type AgentClient struct {
	scheme string
	port   int
	client *http.Client
}

func NewAgentClient(scheme string, port int) *AgentClient {
	if scheme == "" {
		scheme = "http"
	}
	return &AgentClient{scheme: scheme, port: port, client: &http.Client{}}
}

func (c *AgentClient) StartSession(ctx context.Context, host string) error {
	return c.call(ctx, host, "start")
}

func (c *AgentClient) StopSession(ctx context.Context, host string) error {
	return c.call(ctx, host, "stop")
}

func (c *AgentClient) endpoint(host, action string) string {
	u := url.URL{
		Scheme: c.scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(c.port)),
		Path:   "/session/" + action,
	}
	return u.String()
}

func (c *AgentClient) call(ctx context.Context, host, action string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(host, action), nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, host, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, host, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxAgentReply))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode, Message: replyMessage(body)}
}

func replyMessage(body []byte) string {
	var reply struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &reply); err == nil && reply.Status != "" {
		return reply.Status
	}
	return strings.TrimSpace(string(body))
}

// isAgentState reports whether err is the agent saying it is already in
// the requested state.
func isAgentState(err error, status string) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusForbidden && se.Message == status
}
