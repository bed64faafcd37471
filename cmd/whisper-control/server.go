package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

type server struct {
	bin  string
	args []string
	port string

	healthTimeout time.Duration

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

func newServer(bin, model, port, threads, language string) *server {
	args := []string{"-m", model, "--host", "127.0.0.1", "--port", port, "-t", threads}
	if language != "" {
		args = append(args, "-l", language)
	}
	return &server{bin: bin, args: args, port: port, healthTimeout: 30 * time.Second}
}

// start launches the server unless it is already running and waits for its
// HTTP port to answer. It reports whether a new process was started.
func (s *server) start() (bool, error) {
	s.mu.Lock()
	if s.cmd != nil {
		s.mu.Unlock()
		return false, nil
	}

	logFile, err := os.Create(filepath.Join(os.TempDir(), "whisper-server.log"))
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("create log: %w", err)
	}
	cmd := exec.Command(s.bin, s.args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err = cmd.Start(); err != nil {
		logFile.Close()
		s.mu.Unlock()
		return false, fmt.Errorf("start %s: %w", filepath.Base(s.bin), err)
	}

	done := make(chan struct{})
	s.cmd, s.done = cmd, done
	s.mu.Unlock()

	go func() {
		err := cmd.Wait()
		logFile.Close()
		s.mu.Lock()
		if s.cmd == cmd {
			s.cmd, s.done = nil, nil
		}
		s.mu.Unlock()
		close(done)
		slog.Info("whisper-server exited", "error", err)
	}()

	slog.Info("waiting for whisper-server health", "port", s.port)
	if waitForHealth(fmt.Sprintf("http://127.0.0.1:%s", s.port), s.healthTimeout, done) {
		slog.Info("whisper-server ready", "port", s.port)
	}
	return true, nil
}

// stop terminates the server and waits briefly for it to exit.
func (s *server) stop() {
	s.mu.Lock()
	cmd, done := s.cmd, s.done
	s.mu.Unlock()
	if cmd == nil {
		return
	}
	cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		<-done
	}
	slog.Info("whisper-server stopped")
}

func (s *server) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// waitForHealth polls url until it returns 200, the process exits, or timeout expires.
func waitForHealth(url string, timeout time.Duration, exited <-chan struct{}) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if healthOK(client, url) {
			return true
		}
		select {
		case <-exited:
			return false
		case <-time.After(500 * time.Millisecond):
		}
	}
	slog.Warn("health check timed out", "url", url)
	return false
}

func healthOK(client *http.Client, url string) bool {
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
