package playback

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requireBin(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available", name)
	}
	return path
}

func TestPlayerArgs(t *testing.T) {
	require.Equal(t, []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "/tmp/a.mp3"}, NewPlayer("/usr/bin/ffplay").args("/tmp/a.mp3"))
	require.Equal(t, []string{"-q", "/tmp/a.wav"}, NewPlayer("aplay").args("/tmp/a.wav"))
	require.Equal(t, []string{"/tmp/a.wav"}, NewPlayer("paplay").args("/tmp/a.wav"))
}

func TestPlayerPlay(t *testing.T) {
	p := NewPlayer(requireBin(t, "cat"))
	require.NoError(t, p.Play(context.Background(), []byte("RIFF"), "wav"))

	require.Error(t, p.Play(context.Background(), nil, "wav"))

	failing := NewPlayer(requireBin(t, "false"))
	require.Error(t, failing.Play(context.Background(), []byte("RIFF"), "mp3"))
}

func TestVideoArgs(t *testing.T) {
	v := NewVideo("ffplay", "/srv/MDay.mp4", "transpose=2")
	require.Equal(t, []string{"-vf", "transpose=2", "-loop", "0", "-fs", "-autoexit", "-loglevel", "quiet", "/srv/MDay.mp4"}, v.args())

	v = NewVideo("ffplay", "/srv/MDay.mp4", "")
	require.Equal(t, []string{"-loop", "0", "-fs", "-autoexit", "-loglevel", "quiet", "/srv/MDay.mp4"}, v.args())
}

func TestVideoMissingFile(t *testing.T) {
	v := NewVideo("ffplay", filepath.Join(t.TempDir(), "absent.mp4"), "")
	require.ErrorIs(t, v.Start(), ErrNoVideo)
	require.False(t, v.Running())
	v.Stop()
}

func TestVideoStartStop(t *testing.T) {
	sh := requireBin(t, "sh")
	script := filepath.Join(t.TempDir(), "loop.sh")
	require.NoError(t, os.WriteFile(script, []byte("sleep 30\n"), 0o644))

	v := NewVideo(sh, script, "")
	require.NoError(t, v.Start())
	require.True(t, v.Running())
	require.NoError(t, v.Start(), "second start is a no-op")

	v.Stop()
	require.Eventually(t, func() bool { return !v.Running() }, 5*time.Second, 20*time.Millisecond)
}
