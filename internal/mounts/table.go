package mounts

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Mount is one tracked volume: filesystem type, backing device, and the
// mount path when the volume is actually mounted.
type Mount struct {
	Filesystem string  `json:"filesystem"`
	Device     string  `json:"device"`
	Path       *string `json:"path,omitempty"`
}

// Source provides the current mount listing.
type Source interface {
	List() ([]Mount, error)
}

// DefaultTablePath is the standard procfs mount table location.
const DefaultTablePath = "/proc/self/mounts"

// TableSource lists mounts by parsing a procfs-style mount table.
type TableSource struct {
	path string
}

// NewTableSource creates a source reading the mount table at path. An empty
// path selects DefaultTablePath.
func NewTableSource(path string) *TableSource {
	if path == "" {
		path = DefaultTablePath
	}
	return &TableSource{path: path}
}

// List returns device-backed mounts from the table.
func (s *TableSource) List() ([]Mount, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mount table %s: %w", s.path, err)
	}
	defer f.Close()

	return ParseTable(f)
}

// ParseTable parses a mount table in fstab field order (device, mount point,
// filesystem type, options, dump, pass). Virtual filesystems without a
// device node are skipped; only device-backed entries are volumes.
func ParseTable(r io.Reader) ([]Mount, error) {
	var result []Mount

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}

		device := unescapeField(fields[0])
		if !strings.HasPrefix(device, "/dev/") {
			continue
		}

		path := unescapeField(fields[1])
		result = append(result, Mount{
			Filesystem: fields[2],
			Device:     device,
			Path:       &path,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}

	return result, nil
}

// unescapeField decodes the \ooo octal escapes the kernel uses for spaces,
// tabs and backslashes in mount table fields.
func unescapeField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if code, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(code))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// StaticSource is a fixed mount listing for tests and offline use.
type StaticSource struct {
	Mounts []Mount
	Err    error
}

// List returns the configured mounts or error.
func (s *StaticSource) List() ([]Mount, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]Mount, len(s.Mounts))
	copy(out, s.Mounts)
	return out, nil
}
