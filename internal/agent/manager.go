// Package agent runs on a managed host. It owns the processes that make up
// a live desktop session: the display server, the desktop session, the
// change logger and the WebSocket tunnel to the display.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/KasunDA/fc-admin/internal/bridge"
	"github.com/KasunDA/fc-admin/internal/config"
)

var (
	ErrAlreadyStarted = errors.New("already_started")
	ErrAlreadyStopped = errors.New("already_stopped")
)

// ProcStatus describes one managed process.
type ProcStatus struct {
	Role    string `json:"role"`
	Command string `json:"command"`
	PID     int    `json:"pid"`
	Running bool   `json:"running"`
}

type Status struct {
	Running   bool         `json:"running"`
	StartedAt *time.Time   `json:"startedAt,omitempty"`
	Processes []ProcStatus `json:"processes,omitempty"`
}

type managed struct {
	role string
	proc *bridge.Process
}

type Manager struct {
	cfg config.AgentConfig

	mu        sync.Mutex
	procs     []managed
	startedAt time.Time

	// sleep waits out the display server's startup delay.
	sleep  func(ctx context.Context, d time.Duration) error
	logger zerolog.Logger
}

func NewManager(cfg config.AgentConfig) *Manager {
	return &Manager{
		cfg:    cfg,
		sleep:  sleepCtx,
		logger: log.With().Str("component", "agent").Logger(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.procs) > 0
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{Running: len(m.procs) > 0}
	if st.Running {
		t := m.startedAt
		st.StartedAt = &t
	}
	for _, mp := range m.procs {
		st.Processes = append(st.Processes, ProcStatus{
			Role:    mp.role,
			Command: mp.proc.Name(),
			PID:     mp.proc.Pid(),
			Running: mp.proc.Running(),
		})
	}
	return st
}

// Start launches the display server, waits for it to come up, then starts
// the desktop session, the change logger and the tunnel against it. If any
// step fails, the processes already started are stopped again.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.procs) > 0 {
		return ErrAlreadyStarted
	}

	display := []string{"DISPLAY=" + m.cfg.Display}
	steps := []struct {
		role  string
		argv  []string
		env   []string
		delay time.Duration
	}{
		{"display", m.cfg.DisplayCommand, nil, m.cfg.StartupDelay},
		{"session", m.cfg.SessionCommand, display, 0},
		{"logger", m.cfg.LoggerCommand, display, 0},
		{"websocket", m.cfg.WebsocketCommand, nil, 0},
	}

	var started []managed
	for _, step := range steps {
		if len(step.argv) == 0 {
			continue
		}
		proc, err := bridge.StartProcess(bridge.ProcessSpec{
			Name: step.argv[0],
			Args: step.argv[1:],
			Env:  step.env,
			User: m.cfg.User,
		})
		if err == nil {
			started = append(started, managed{role: step.role, proc: proc})
			m.logger.Info().Str("role", step.role).Int("pid", proc.Pid()).Msg("process started")
			err = m.sleep(ctx, step.delay)
		}
		if err != nil {
			m.stopAll(context.WithoutCancel(ctx), started)
			return fmt.Errorf("starting %s: %w", step.role, err)
		}
	}
	if len(started) == 0 {
		return errors.New("no session commands configured")
	}

	m.procs = started
	m.startedAt = time.Now()
	return nil
}

// Stop tears the session down in reverse start order.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.procs) == 0 {
		return ErrAlreadyStopped
	}
	err := m.stopAll(ctx, m.procs)
	m.procs = nil
	m.startedAt = time.Time{}
	return err
}

func (m *Manager) stopAll(ctx context.Context, procs []managed) error {
	var errs []error
	for i := len(procs) - 1; i >= 0; i-- {
		mp := procs[i]
		if err := mp.proc.Stop(ctx, m.cfg.StopGrace); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", mp.role, err))
			continue
		}
		m.logger.Info().Str("role", mp.role).Msg("process stopped")
	}
	return errors.Join(errs...)
}

// Watch tears the session down when the display server exits on its own,
// so the next start is not refused. It returns when ctx is done.
func (m *Manager) Watch(ctx context.Context) {
	period := m.cfg.HealthCheckPeriod
	if period <= 0 {
		period = 5 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Manager) check(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.procs) == 0 || m.procs[0].proc.Running() {
		return
	}
	m.logger.Warn().Str("role", m.procs[0].role).Err(m.procs[0].proc.Err()).Msg("process exited, closing session")
	if err := m.stopAll(ctx, m.procs); err != nil {
		m.logger.Warn().Err(err).Msg("cleanup after exit failed")
	}
	m.procs = nil
	m.startedAt = time.Time{}
}
