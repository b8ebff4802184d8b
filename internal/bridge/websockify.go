package bridge

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

// Websockify runs an external websockify process as the tunnel.
type Websockify struct {
	path       string
	listenHost string
	listenPort int
	grace      time.Duration

	mu   sync.Mutex
	proc *Process
}

var _ Tunnel = (*Websockify)(nil)

func NewWebsockify(path, listenHost string, listenPort int, grace time.Duration) *Websockify {
	return &Websockify{path: path, listenHost: listenHost, listenPort: listenPort, grace: grace}
}

func (w *Websockify) Open(ctx context.Context, target string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.proc != nil {
		if err := w.proc.Stop(ctx, w.grace); err != nil {
			return err
		}
		w.proc = nil
	}
	listen := net.JoinHostPort(w.listenHost, strconv.Itoa(w.listenPort))
	proc, err := StartProcess(ProcessSpec{
		Name:   w.path,
		Args:   []string{listen, target},
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if err != nil {
		return err
	}
	w.proc = proc
	return nil
}

func (w *Websockify) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.proc == nil {
		return nil
	}
	err := w.proc.Stop(ctx, w.grace)
	w.proc = nil
	return err
}
