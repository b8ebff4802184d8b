package bridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Tunnel exposes the managed host's remote desktop port to browsers.
type Tunnel interface {
	// Open points the tunnel at target (host:port), dropping any
	// connections to a previous target.
	Open(ctx context.Context, target string) error
	// Close stops the tunnel. It tolerates a tunnel that is not open.
	Close(ctx context.Context) error
}

const (
	proxyDialTimeout = 5 * time.Second
	proxyBufSize     = 32 << 10
)

// Proxy is an in-process WebSocket to TCP bridge, wire compatible with
// websockify's binary subprotocol.
type Proxy struct {
	listenAddr string
	upgrader   websocket.Upgrader
	logger     zerolog.Logger

	mu     sync.Mutex
	target string
	ln     net.Listener
	srv    *http.Server
	conns  map[*websocket.Conn]net.Conn
}

var _ Tunnel = (*Proxy)(nil)

func NewProxy(listenAddr string) *Proxy {
	return &Proxy{
		listenAddr: listenAddr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  proxyBufSize,
			WriteBufferSize: proxyBufSize,
			Subprotocols:    []string{"binary"},
			// The desktop viewer is served from the admin UI, which may sit
			// behind a different host name than the tunnel.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:  make(map[*websocket.Conn]net.Conn),
		logger: log.With().Str("component", "proxy").Logger(),
	}
}

// Addr returns the listening address, or "" when the proxy is closed.
func (p *Proxy) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ln == nil {
		return ""
	}
	return p.ln.Addr().String()
}

func (p *Proxy) Target() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

func (p *Proxy) Open(ctx context.Context, target string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dropConnsLocked()
	p.target = target
	if p.ln != nil {
		p.logger.Info().Str("target", target).Msg("proxy retargeted")
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", p.listenAddr)
	if err != nil {
		p.target = ""
		return err
	}
	srv := &http.Server{
		Handler:           http.HandlerFunc(p.serveWS),
		ReadHeaderTimeout: 10 * time.Second,
	}
	p.ln, p.srv = ln, srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error().Err(err).Msg("proxy server stopped")
		}
	}()
	p.logger.Info().Str("listen", ln.Addr().String()).Str("target", target).Msg("proxy listening")
	return nil
}

func (p *Proxy) Close(ctx context.Context) error {
	p.mu.Lock()
	srv := p.srv
	p.dropConnsLocked()
	p.target = ""
	p.ln, p.srv = nil, nil
	p.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (p *Proxy) dropConnsLocked() {
	for ws, tcp := range p.conns {
		ws.Close()
		tcp.Close()
		delete(p.conns, ws)
	}
}

func (p *Proxy) serveWS(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	target := p.target
	p.mu.Unlock()
	if target == "" {
		http.Error(w, "no active session", http.StatusServiceUnavailable)
		return
	}

	tcp, err := net.DialTimeout("tcp", target, proxyDialTimeout)
	if err != nil {
		p.logger.Warn().Err(err).Str("target", target).Msg("dial failed")
		http.Error(w, "target unreachable", http.StatusBadGateway)
		return
	}
	ws, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		tcp.Close()
		return
	}

	p.mu.Lock()
	if p.target != target {
		p.mu.Unlock()
		ws.Close()
		tcp.Close()
		return
	}
	p.conns[ws] = tcp
	p.mu.Unlock()

	p.logger.Debug().Str("remote", r.RemoteAddr).Str("target", target).Msg("client connected")
	p.pump(ws, tcp)

	p.mu.Lock()
	delete(p.conns, ws)
	p.mu.Unlock()
}

// pump copies in both directions until either side closes.
func (p *Proxy) pump(ws *websocket.Conn, tcp net.Conn) {
	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if _, err := tcp.Write(data); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, proxyBufSize)
		for {
			n, err := tcp.Read(buf)
			if n > 0 {
				if werr := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	<-done
	ws.Close()
	tcp.Close()
	<-done
}
