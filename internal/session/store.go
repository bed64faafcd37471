package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	filePrefix     = "metrics_v1_"
	fileSuffix     = ".json"
	fileTimeLayout = "20060102_150405"
)

var ErrNoLogs = errors.New("no session logs found")

// Store writes session logs into a directory, one JSON file per session.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory logs are written to.
func (s *Store) Dir() string {
	return s.dir
}

// FileName returns the log file name for a session completed at end.
func FileName(end time.Time) string {
	return filePrefix + end.Format(fileTimeLayout) + fileSuffix
}

// Write persists sess under a name derived from its end time. The file is
// written to a temp name and renamed so readers never see a partial log.
func (s *Store) Write(sess *Session) (string, error) {
	if sess.End.IsZero() {
		return "", errors.New("session is not closed")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create metrics dir: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp log: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp log: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp log: %w", err)
	}

	path := filepath.Join(s.dir, FileName(sess.End))
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename log: %w", err)
	}
	return path, nil
}

// Load reads one session log.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session log: %w", err)
	}
	var sess Session
	if err = json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session log %s: %w", path, err)
	}
	return &sess, nil
}

// Latest returns the log in dir with the newest filename timestamp.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return "", err
	}

	type candidate struct {
		path string
		at   time.Time
	}
	var found []candidate
	for _, m := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), filePrefix), fileSuffix)
		at, parseErr := time.Parse(fileTimeLayout, stamp)
		if parseErr != nil {
			continue
		}
		found = append(found, candidate{path: m, at: at})
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoLogs, dir)
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].at.After(found[j].at)
	})
	return found[0].path, nil
}
