package bridge

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/KasunDA/fc-admin/internal/session"
)

// Remote is the production session.Bridge: it asks the session agent on
// the host to start the desktop, then points the tunnel at the host's
// remote desktop port.
type Remote struct {
	agent      *AgentClient
	tunnel     Tunnel
	targetPort int
	timeout    time.Duration
	onFailure  func()
	logger     zerolog.Logger

	mu   sync.Mutex
	host string
}

var _ session.Bridge = (*Remote)(nil)

func NewRemote(agent *AgentClient, tunnel Tunnel, targetPort int, timeout time.Duration) *Remote {
	return &Remote{
		agent:      agent,
		tunnel:     tunnel,
		targetPort: targetPort,
		timeout:    timeout,
		logger:     log.With().Str("component", "bridge").Logger(),
	}
}

// OnFailure registers a hook run every time Start fails.
func (r *Remote) OnFailure(fn func()) {
	r.onFailure = fn
}

func (r *Remote) Host() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.host
}

// Start asks the agent on host to start a session. An agent that already
// runs one counts as success. A session still up on another host is
// stopped first.
func (r *Remote) Start(ctx context.Context, host string) error {
	err := r.start(ctx, host)
	if err != nil && r.onFailure != nil {
		r.onFailure()
	}
	return err
}

func (r *Remote) start(ctx context.Context, host string) error {
	if prev := r.Host(); prev != "" && prev != host {
		if err := r.Stop(ctx); err != nil {
			r.logger.Warn().Err(err).Str("host", prev).Msg("stopping previous host failed")
		}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.agent.StartSession(ctx, host); err != nil {
		if !isAgentState(err, "already_started") {
			return err
		}
		r.logger.Info().Str("host", host).Msg("agent session already running")
	}

	target := net.JoinHostPort(host, strconv.Itoa(r.targetPort))
	if err := r.tunnel.Open(ctx, target); err != nil {
		if stopErr := r.agent.StopSession(context.WithoutCancel(ctx), host); stopErr != nil {
			r.logger.Warn().Err(stopErr).Str("host", host).Msg("agent stop after tunnel failure")
		}
		return fmt.Errorf("opening tunnel to %s: %w", target, err)
	}

	r.mu.Lock()
	r.host = host
	r.mu.Unlock()
	r.logger.Info().Str("host", host).Str("target", target).Msg("bridge up")
	return nil
}

// Stop closes the tunnel and asks the agent to stop its session. With no
// current host only the tunnel is closed.
func (r *Remote) Stop(ctx context.Context) error {
	r.mu.Lock()
	host := r.host
	r.host = ""
	r.mu.Unlock()

	if err := r.tunnel.Close(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("tunnel close failed")
	}
	if host == "" {
		return nil
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := r.agent.StopSession(ctx, host); err != nil && !isAgentState(err, "already_stopped") {
		return err
	}
	r.logger.Info().Str("host", host).Msg("bridge down")
	return nil
}
