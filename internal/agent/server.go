package agent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/davis7dotsh/betterctx/internal/logging"
)

// bootTimeout bounds how long a backend may take to answer HTTP after its
// process starts.
const bootTimeout = 15 * time.Second

// ErrPortBusy marks a boot failure caused by the requested port being taken.
var ErrPortBusy = errors.New("port busy")

// IsPortBusy reports whether a launch failure means the chosen port was
// taken. The condition is recognised from the backend's boot error text:
// anything mentioning the port being unavailable.
func IsPortBusy(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrPortBusy) {
		return true
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "address already in use") ||
		strings.Contains(msg, "port") && (strings.Contains(msg, "in use") || strings.Contains(msg, "unavailable") || strings.Contains(msg, "taken"))
}

// ProcessLauncher boots the configured agent command as a subprocess
// serving HTTP on a local port.
type ProcessLauncher struct {
	// Command is the backend binary, e.g. "opencode".
	Command string
	Logger  *logging.Logger
}

// processServer is a handle on a launched backend subprocess.
type processServer struct {
	port      int
	cmd       *exec.Cmd
	closeOnce sync.Once
	closeErr  error
	waitCh    chan error
	logger    *logging.Logger
}

// Launch starts the backend with dir as its working directory, bound to
// port, and waits for it to answer HTTP. A boot failure caused by the port
// being taken is reported as ErrPortBusy.
func (l *ProcessLauncher) Launch(ctx context.Context, dir string, port int) (Server, Client, error) {
	cmd := exec.Command(l.Command, "serve", "--hostname", "127.0.0.1", "--port", strconv.Itoa(port))
	cmd.Dir = dir

	// Own process group so Close can take down the whole backend tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var bootOutput strings.Builder

	cmd.Stdout = &bootOutput
	cmd.Stderr = &bootOutput

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start agent backend: %w", err)
	}

	srv := &processServer{
		port:   port,
		cmd:    cmd,
		waitCh: make(chan error, 1),
		logger: l.Logger,
	}

	go func() {
		srv.waitCh <- cmd.Wait()
	}()

	client := NewHTTPClient(port)

	readyCtx, cancel := context.WithTimeout(ctx, bootTimeout)
	defer cancel()

	readyErr := make(chan error, 1)

	go func() {
		readyErr <- client.Ready(readyCtx, bootTimeout)
	}()

	select {
	case err := <-srv.waitCh:
		// Process died before answering HTTP: a boot error. Nothing is
		// left to close.
		bootMsg := strings.TrimSpace(bootOutput.String())

		bootFailure := fmt.Errorf("agent backend exited during boot: %v: %s", err, bootMsg)
		if IsPortBusy(bootFailure) {
			return nil, nil, fmt.Errorf("%w: %s", ErrPortBusy, bootMsg)
		}

		return nil, nil, bootFailure
	case err := <-readyErr:
		if err != nil {
			_ = srv.Close()

			return nil, nil, fmt.Errorf("agent backend never became ready: %w", err)
		}
	}

	if l.Logger != nil {
		l.Logger.Debug("agent backend ready", "port", port, "dir", dir)
	}

	return srv, client, nil
}

// Port returns the bound local port.
func (s *processServer) Port() int {
	return s.port
}

// Close terminates the backend process group and waits for it to exit.
// Idempotent and safe from any goroutine.
func (s *processServer) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process == nil {
			return
		}

		pgid := -s.cmd.Process.Pid

		// Graceful first, then hard kill if it lingers.
		_ = syscall.Kill(pgid, syscall.SIGTERM)

		select {
		case <-s.waitCh:
		case <-time.After(3 * time.Second):
			_ = syscall.Kill(pgid, syscall.SIGKILL)
			<-s.waitCh
		}

		if s.logger != nil {
			s.logger.Debug("agent backend closed", "port", s.port)
		}
	})

	return s.closeErr
}
