package mounts

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestParseTable(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Mount
	}{
		{
			name: "device backed entries only",
			input: strings.Join([]string{
				"proc /proc proc rw,nosuid 0 0",
				"/dev/sda1 / ext4 rw,relatime 0 0",
				"tmpfs /tmp tmpfs rw 0 0",
				"/dev/sdb1 /media/usb0 vfat rw,utf8 0 0",
			}, "\n"),
			want: []Mount{
				{Filesystem: "ext4", Device: "/dev/sda1", Path: strPtr("/")},
				{Filesystem: "vfat", Device: "/dev/sdb1", Path: strPtr("/media/usb0")},
			},
		},
		{
			name:  "octal escapes in mount path",
			input: `/dev/sdb1 /media/USB\040DRIVE vfat rw 0 0`,
			want: []Mount{
				{Filesystem: "vfat", Device: "/dev/sdb1", Path: strPtr("/media/USB DRIVE")},
			},
		},
		{
			name: "blank lines and comments skipped",
			input: strings.Join([]string{
				"",
				"# comment",
				"/dev/sdc1 /mnt ext4 rw 0 0",
			}, "\n"),
			want: []Mount{
				{Filesystem: "ext4", Device: "/dev/sdc1", Path: strPtr("/mnt")},
			},
		},
		{
			name:  "short lines skipped",
			input: "/dev/sdd1 /mnt",
			want:  nil,
		},
		{
			name:  "empty table",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTable(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ParseTable() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseTable() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestUnescapeField(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/media/plain", "/media/plain"},
		{`/media/USB\040DRIVE`, "/media/USB DRIVE"},
		{`/media/tab\011here`, "/media/tab\there"},
		{`/media/back\134slash`, `/media/back\slash`},
		{`/media/bad\9xx`, `/media/bad\9xx`},
	}

	for _, tt := range tests {
		if got := unescapeField(tt.input); got != tt.want {
			t.Errorf("unescapeField(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTableSourceList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mounts")
	table := "/dev/sda1 / ext4 rw 0 0\n"
	if err := os.WriteFile(path, []byte(table), 0o644); err != nil {
		t.Fatalf("failed to write table: %v", err)
	}

	source := NewTableSource(path)
	got, err := source.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].Device != "/dev/sda1" {
		t.Errorf("List() = %+v", got)
	}
}

func TestTableSourceMissingFile(t *testing.T) {
	source := NewTableSource(filepath.Join(t.TempDir(), "absent"))
	if _, err := source.List(); err == nil {
		t.Error("expected error for missing mount table")
	}
}

func TestTableSourceDefaultPath(t *testing.T) {
	source := NewTableSource("")
	if source.path != DefaultTablePath {
		t.Errorf("path = %q, want %q", source.path, DefaultTablePath)
	}
}
