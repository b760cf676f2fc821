package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mordilloSan/go_logger/logger"
)

const (
	// listenFDsStart is the first descriptor passed by socket activation.
	listenFDsStart = 3

	readTimeout  = 30 * time.Second
	writeTimeout = 60 * time.Second
)

// endpoint is one HTTP server and the function that runs it.
type endpoint struct {
	srv   *http.Server
	serve func() error
	desc  string
}

func newServer(h http.Handler, addr string) *http.Server {
	return &http.Server{Addr: addr, Handler: h, ReadTimeout: readTimeout, WriteTimeout: writeTimeout}
}

// endpoints builds the configured unix socket and TCP endpoints.
func (d *daemon) endpoints(h http.Handler) ([]endpoint, error) {
	var eps []endpoint

	if d.cfg.SocketPath != "" {
		l, activated, err := d.cartSocket()
		if err != nil {
			return nil, err
		}
		srv := newServer(h, "")
		desc := "unix://" + d.cfg.SocketPath
		if activated {
			desc += " (systemd socket activation)"
		}
		eps = append(eps, endpoint{srv: srv, serve: func() error { return srv.Serve(l) }, desc: desc})
	}

	if d.cfg.ListenAddr != "" {
		srv := newServer(h, d.cfg.ListenAddr)
		eps = append(eps, endpoint{srv: srv, serve: srv.ListenAndServe, desc: "http://localhost" + d.cfg.ListenAddr})
	}

	if len(eps) == 0 {
		return nil, errors.New("no listeners configured")
	}
	return eps, nil
}

// cartSocket returns the API unix socket. A socket handed over by systemd wins
// over creating one at SocketPath.
func (d *daemon) cartSocket() (net.Listener, bool, error) {
	if l := activatedListener(); l != nil {
		d.usedSystemdSock = true
		return l, true, nil
	}
	d.usedSystemdSock = false

	path := d.cfg.SocketPath
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("remove stale socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("mkdir socket dir: %w", err)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, false, fmt.Errorf("listen on unix socket: %w", err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		if cerr := l.Close(); cerr != nil {
			logger.Warnf("Closing socket %s: %v", path, cerr)
		}
		return nil, false, fmt.Errorf("chmod socket: %w", err)
	}
	return l, false, nil
}

// activatedListener adopts a single socket passed through LISTEN_PID/LISTEN_FDS,
// or returns nil when the process was not socket activated.
func activatedListener() net.Listener {
	if os.Getenv("LISTEN_PID") != strconv.Itoa(os.Getpid()) {
		return nil
	}
	if n, err := strconv.Atoi(os.Getenv("LISTEN_FDS")); err != nil || n != 1 {
		return nil
	}

	f := os.NewFile(uintptr(listenFDsStart), "sharingcart.socket")
	if f == nil {
		return nil
	}
	l, err := net.FileListener(f)
	if err != nil {
		if cerr := f.Close(); cerr != nil {
			logger.Warnf("Closing activated socket: %v", cerr)
		}
		return nil
	}

	// children must not adopt the descriptor again
	for _, key := range []string{"LISTEN_PID", "LISTEN_FDS"} {
		if err := os.Unsetenv(key); err != nil {
			logger.Warnf("Unset %s: %v", key, err)
		}
	}
	return l
}

// serve runs every endpoint until ctx is done or one of them fails.
func (d *daemon) serve(ctx context.Context, eps []endpoint) error {
	errCh := make(chan error, len(eps))
	for _, ep := range eps {
		d.servers = append(d.servers, ep.srv)
		logger.Infof("Cart API listening on %s", ep.desc)
		go func(ep endpoint) { errCh <- ep.serve() }(ep)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	for _, srv := range d.servers {
		_ = srv.Shutdown(context.Background())
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
