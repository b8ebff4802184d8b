package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessSpec describes a child process. Env is appended to the current
// environment. User, when set, runs the process under that account.
type ProcessSpec struct {
	Name   string
	Args   []string
	Env    []string
	User   string
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a running child with a gopsutil handle for signalling it and
// its descendants.
type Process struct {
	spec   ProcessSpec
	cmd    *exec.Cmd
	handle *process.Process
	done   chan struct{}

	mu      sync.Mutex
	waitErr error

	logger zerolog.Logger
}

func StartProcess(spec ProcessSpec) (*Process, error) {
	if spec.Name == "" {
		return nil, errors.New("empty command")
	}
	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	if err := configureCommand(cmd, spec.User); err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", spec.Name, err)
	}

	p := &Process{
		spec:   spec,
		cmd:    cmd,
		done:   make(chan struct{}),
		logger: log.With().Str("component", "process").Str("cmd", spec.Name).Int("pid", cmd.Process.Pid).Logger(),
	}
	handle, err := process.NewProcess(int32(cmd.Process.Pid))
	if err != nil {
		p.logger.Warn().Err(err).Msg("no process handle, children will not be signalled")
	}
	p.handle = handle

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
	}()
	p.logger.Debug().Strs("args", spec.Args).Msg("process started")
	return p, nil
}

func (p *Process) Pid() int { return p.cmd.Process.Pid }

func (p *Process) Name() string { return p.spec.Name }

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Err returns the exit error once the process is done.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Stop sends SIGTERM to the process and its children, waits up to grace
// for it to exit, then kills whatever is left. Stopping an exited process is
// a no-op.
func (p *Process) Stop(ctx context.Context, grace time.Duration) error {
	if !p.Running() {
		return nil
	}

	var children []*process.Process
	if p.handle != nil {
		children = descendants(ctx, p.handle)
		for _, c := range children {
			_ = c.TerminateWithContext(ctx)
		}
		if err := p.handle.TerminateWithContext(ctx); err != nil {
			p.logger.Debug().Err(err).Msg("terminate failed")
		}
	} else {
		_ = p.cmd.Process.Signal(os.Interrupt)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		p.logger.Debug().Msg("process exited")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	p.logger.Warn().Dur("grace", grace).Msg("process did not exit, killing")
	for _, c := range children {
		_ = c.Kill()
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing %s: %w", p.spec.Name, err)
	}
	<-p.done
	return nil
}

func descendants(ctx context.Context, p *process.Process) []*process.Process {
	children, err := p.ChildrenWithContext(ctx)
	if err != nil {
		return nil
	}
	out := children
	for _, c := range children {
		out = append(out, descendants(ctx, c)...)
	}
	return out
}
