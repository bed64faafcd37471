package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
)

var ErrNoVideo = errors.New("video file not found")

// Video loops a clip in a background player process. The process is not
// synchronized with the conversation loop; Stop is best-effort.
type Video struct {
	bin    string
	path   string
	filter string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewVideo creates a looping video player. filter is passed to ffplay as -vf
// (e.g. "transpose=2" for a portrait frame).
func NewVideo(bin, path, filter string) *Video {
	return &Video{bin: bin, path: path, filter: filter}
}

func (v *Video) args() []string {
	if filepath.Base(v.bin) != "ffplay" {
		return []string{v.path}
	}
	args := []string{}
	if v.filter != "" {
		args = append(args, "-vf", v.filter)
	}
	return append(args, "-loop", "0", "-fs", "-autoexit", "-loglevel", "quiet", v.path)
}

// Start launches playback. Calling Start while running is a no-op.
func (v *Video) Start() error {
	if _, err := os.Stat(v.path); err != nil {
		return fmt.Errorf("%w: %s", ErrNoVideo, v.path)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cmd != nil {
		return nil
	}

	cmd := exec.Command(v.bin, v.args()...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", filepath.Base(v.bin), err)
	}
	v.cmd = cmd
	slog.Info("video_started", "path", v.path, "pid", cmd.Process.Pid)

	go v.reap(cmd)
	return nil
}

func (v *Video) reap(cmd *exec.Cmd) {
	err := cmd.Wait()
	v.mu.Lock()
	if v.cmd == cmd {
		v.cmd = nil
	}
	v.mu.Unlock()
	slog.Debug("video_exited", "error", err)
}

// Stop signals the player to terminate without waiting for it.
func (v *Video) Stop() {
	v.mu.Lock()
	cmd := v.cmd
	v.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Warn("video stop", "error", err)
	}
}

// Running reports whether the player process is still alive.
func (v *Video) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cmd != nil
}
