// Package specfile holds an RPM spec file in memory.
//
// The file is loaded once, edited through SetDirective and Replace, and
// written back with Save. Nothing here touches the disk between Load and
// Save.
package specfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// directiveRe matches preamble lines such as "Version:   1.0 "
var directiveRe = regexp.MustCompile(`^(\s*)([A-Za-z][A-Za-z0-9]*)(\s*:\s*)(.*?)(\s*)$`)

// Spec is an RPM spec file held as lines
type Spec struct {
	Path  string
	lines []string
	dirty bool
}

// Load reads a spec file from disk
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	return Parse(path, data), nil
}

// Parse builds a Spec from raw content. Path is only used by Save and Dir.
func Parse(path string, data []byte) *Spec {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}
	return &Spec{Path: path, lines: lines}
}

// Dir returns the directory holding the spec file
func (s *Spec) Dir() string {
	return filepath.Dir(s.Path)
}

// Bytes renders the current content
func (s *Spec) Bytes() []byte {
	if len(s.lines) == 0 {
		return nil
	}
	return []byte(strings.Join(s.lines, "\n") + "\n")
}

// Dirty reports whether the content changed since Load or the last Save
func (s *Spec) Dirty() bool {
	return s.dirty
}

// Save writes the content back to Path
func (s *Spec) Save() error {
	info, err := os.Stat(s.Path)
	mode := os.FileMode(0644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(s.Path, s.Bytes(), mode); err != nil {
		return fmt.Errorf("failed to write spec file: %w", err)
	}
	s.dirty = false
	return nil
}

// Directive returns the raw value of the first "<name>:" line. Names are
// matched case-insensitively, as rpmbuild does.
func (s *Spec) Directive(name string) (string, bool) {
	for _, line := range s.lines {
		m := directiveRe.FindStringSubmatch(line)
		if m != nil && strings.EqualFold(m[2], name) {
			return m[4], true
		}
	}
	return "", false
}

// SetDirective replaces the value of the first "<name>:" line, keeping its
// indentation and separator. Trailing whitespace is dropped.
func (s *Spec) SetDirective(name, value string) bool {
	for i, line := range s.lines {
		m := directiveRe.FindStringSubmatch(line)
		if m != nil && strings.EqualFold(m[2], name) {
			updated := m[1] + m[2] + m[3] + value
			if updated != line {
				s.lines[i] = updated
				s.dirty = true
			}
			return true
		}
	}
	return false
}

// Contains reports whether token appears anywhere in the file
func (s *Spec) Contains(token string) bool {
	for _, line := range s.lines {
		if strings.Contains(line, token) {
			return true
		}
	}
	return false
}

// Replace substitutes every occurrence of token and returns the count
func (s *Spec) Replace(token, value string) int {
	if token == "" {
		return 0
	}
	count := 0
	for i, line := range s.lines {
		if n := strings.Count(line, token); n > 0 {
			s.lines[i] = strings.ReplaceAll(line, token, value)
			count += n
		}
	}
	if count > 0 && token != value {
		s.dirty = true
	}
	return count
}

// Clone returns an independent copy with the same Path
func (s *Spec) Clone() *Spec {
	return &Spec{Path: s.Path, lines: s.Lines(), dirty: s.dirty}
}

// Lines returns a copy of the current lines
func (s *Spec) Lines() []string {
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}
