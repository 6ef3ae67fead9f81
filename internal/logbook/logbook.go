package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const defaultRetain = 64

// Logbook is the kiosk's human-readable journey log. Entries are appended to
// a text file and the most recent ones are retained in memory so the TUI can
// redraw its log panel without touching disk.
type Logbook struct {
	path   string
	clock  func() time.Time
	mu     sync.Mutex
	recent []string
	total  int
	retain int
}

// New creates a logbook that writes to the provided path. Lines already in
// the file seed the in-memory tail.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: ensure dir: %w", err)
	}
	l := &Logbook{
		path:   path,
		clock:  func() time.Time { return time.Now().UTC() },
		retain: defaultRetain,
	}
	if err := l.seed(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logbook) seed() error {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("logbook: open %s: %w", l.path, err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		l.remember(scanner.Text())
	}
	return scanner.Err()
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s %-5s %s",
		l.clock().Format(time.RFC3339),
		string(level),
		strings.TrimSpace(message),
	)
	l.remember(line)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line + "\n")
}

func (l *Logbook) remember(line string) {
	l.total++
	l.recent = append(l.recent, line)
	if over := len(l.recent) - l.retain; over > 0 {
		l.recent = append(l.recent[:0], l.recent[over:]...)
	}
}

// Tail returns up to maxLines of the most recent entries plus the total
// number of entries seen by this logbook.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lines := l.recent
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out, l.total
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
