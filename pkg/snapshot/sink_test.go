package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatForPath(t *testing.T) {
	tests := map[string]Format{
		"ordercloud-seed.yml": FormatYAML,
		"seed.yaml":           FormatYAML,
		"seed.JSON":           FormatJSON,
		"dir/seed.json":       FormatJSON,
		"no-extension":        FormatYAML,
	}
	for path, want := range tests {
		if got := FormatForPath(path); got != want {
			t.Errorf("FormatForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestFileSink_Write(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"seed.yml", "seed.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte("old contents"), 0o600); err != nil {
				t.Fatal(err)
			}

			if err := NewFileSink(path).Write(context.Background(), sample()); err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if strings.Contains(string(data), "old contents") || !strings.Contains(string(data), "MarketplaceID") {
				t.Errorf("file not replaced with snapshot:\n%s", data)
			}
		})
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("directory has %d entries, want no temp files left", len(entries))
	}
}

func TestFileSink_FileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordercloud-seed.yml")
	if err := NewFileSink(path).Write(context.Background(), sample()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o644 {
		t.Errorf("file mode = %v, want -rw-r--r--", got)
	}
}

func TestFileSink_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "seed.yml")
	if err := NewFileSink(path).Write(context.Background(), sample()); err == nil {
		t.Error("Write() into missing directory succeeded")
	}
}

func TestFileSink_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(t.TempDir(), "seed.yml")
	if err := NewFileSink(path).Write(ctx, sample()); !errors.Is(err, context.Canceled) {
		t.Errorf("Write() error = %v, want context.Canceled", err)
	}
}

type failingSink struct{ calls *int }

func (f failingSink) Write(context.Context, *Marketplace) error {
	*f.calls++
	return errors.New("disk full")
}

func TestMultiSink_StopsAtFirstError(t *testing.T) {
	var calls int
	ms := MultiSink{failingSink{&calls}, failingSink{&calls}}
	if err := ms.Write(context.Background(), sample()); err == nil {
		t.Fatal("MultiSink.Write() succeeded")
	}
	if calls != 1 {
		t.Errorf("sinks called %d times, want 1", calls)
	}
}
