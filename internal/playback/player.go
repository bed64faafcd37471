// Package playback plays synthesized speech and loops the background video
// through external media players.
package playback

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Player plays an audio clip to completion through an external command.
type Player struct {
	bin string
}

// NewPlayer creates a player backed by bin (ffplay, aplay, mpg123, paplay, afplay).
// Any other command receives the clip path as its only argument.
func NewPlayer(bin string) *Player {
	return &Player{bin: bin}
}

func (p *Player) args(path string) []string {
	switch filepath.Base(p.bin) {
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path}
	case "aplay", "mpg123":
		return []string{"-q", path}
	default:
		return []string{path}
	}
}

// Play writes data to a temp file with the given extension and blocks until
// the player exits or ctx is done.
func (p *Player) Play(ctx context.Context, data []byte, format string) error {
	if len(data) == 0 {
		return fmt.Errorf("play: empty audio")
	}
	ext := strings.TrimPrefix(format, ".")
	if ext == "" {
		ext = "wav"
	}

	tmpFile, err := os.CreateTemp("", "tpf-speech-*."+ext)
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	path := tmpFile.Name()
	defer os.Remove(path)

	if _, err = tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp audio: %w", err)
	}
	if err = tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp audio: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.bin, p.args(path)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(p.bin), err, strings.TrimSpace(string(output)))
	}
	return nil
}
