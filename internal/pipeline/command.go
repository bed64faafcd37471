package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Script runs one stage as a child process: the input text is the only
// argument, stdout is the result and a non-zero exit is a failure.
type Script struct {
	interpreter string
	path        string
	dir         string
}

// NewScript creates a stage script run as `interpreter path [text]` in dir.
func NewScript(interpreter, path, dir string) *Script {
	return &Script{interpreter: interpreter, path: path, dir: dir}
}

func (s *Script) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, s.interpreter, append([]string{s.path}, args...)...)
	cmd.Dir = s.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", filepath.Base(s.path), err, lastLine(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ScriptCapturer records and recognizes speech through a script.
type ScriptCapturer struct{ *Script }

func (c ScriptCapturer) Capture(ctx context.Context) (string, error) {
	return c.Run(ctx)
}

// ScriptGenerator passes the recognized text to a script and returns its stdout.
type ScriptGenerator struct{ *Script }

func (g ScriptGenerator) Generate(ctx context.Context, text string) (string, error) {
	return g.Run(ctx, text)
}

// ScriptSynthesizer speaks the reply through a script; its output is ignored.
type ScriptSynthesizer struct{ *Script }

func (s ScriptSynthesizer) Synthesize(ctx context.Context, text string) error {
	_, err := s.Run(ctx, text)
	return err
}
