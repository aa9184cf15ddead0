package credentials

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T, input string) *FileKeyManager {
	t.Helper()
	m := NewFileKeyManager(filepath.Join(t.TempDir(), "keys", "gemini_key"))
	m.prompt = io.Discard
	m.read = func() (string, error) { return input, nil }
	return m
}

func TestCapabilityVariants(t *testing.T) {
	ctx := context.Background()

	t.Run("Unavailable", func(t *testing.T) {
		c := Unavailable()
		if _, ok := c.Manager(); ok {
			t.Error("Unavailable capability returned a manager")
		}
		if c.CanSelect() {
			t.Error("Unavailable capability claims selection")
		}
		if _, err := c.Key(ctx); !errors.Is(err, ErrUnavailable) {
			t.Errorf("Key() error = %v, want ErrUnavailable", err)
		}
	})

	t.Run("Static", func(t *testing.T) {
		c := Available(StaticKey("cfg-key"))
		if c.CanSelect() {
			t.Error("static key should not offer selection")
		}
		key, err := c.Key(ctx)
		if err != nil || key != "cfg-key" {
			t.Errorf("Key() = %q, %v", key, err)
		}
		m, _ := c.Manager()
		if err := m.SelectKey(ctx); !errors.Is(err, ErrSelectUnsupported) {
			t.Errorf("SelectKey() error = %v", err)
		}
	})

	t.Run("File", func(t *testing.T) {
		c := Available(newTestManager(t, "x"))
		if !c.CanSelect() {
			t.Error("file manager should offer selection")
		}
	})
}

func TestFileKeyManagerSelect(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "  AIza-test-key\n")

	has, err := m.HasKey(ctx)
	if err != nil || has {
		t.Fatalf("HasKey() before select = %v, %v", has, err)
	}
	if _, err := m.Key(ctx); !errors.Is(err, ErrNoKey) {
		t.Errorf("Key() before select error = %v, want ErrNoKey", err)
	}

	if err := m.SelectKey(ctx); err != nil {
		t.Fatalf("SelectKey() error = %v", err)
	}

	key, err := m.Key(ctx)
	if err != nil || key != "AIza-test-key" {
		t.Errorf("Key() = %q, %v", key, err)
	}
	if has, _ := m.HasKey(ctx); !has {
		t.Error("HasKey() = false after select")
	}

	info, err := os.Stat(m.path)
	if err != nil {
		t.Fatalf("key file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key file permissions = %o, want 600", perm)
	}
}

func TestFileKeyManagerRejectsEmptyInput(t *testing.T) {
	m := newTestManager(t, "   \n")
	if err := m.SelectKey(context.Background()); !errors.Is(err, ErrNoKey) {
		t.Errorf("SelectKey(empty) error = %v, want ErrNoKey", err)
	}
}

func TestFileKeyManagerReadError(t *testing.T) {
	m := newTestManager(t, "")
	m.read = func() (string, error) { return "", io.ErrUnexpectedEOF }
	if err := m.SelectKey(context.Background()); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("SelectKey() error = %v", err)
	}
}

func TestFileKeyManagerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := newTestManager(t, "key")
	if err := m.SelectKey(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("SelectKey() error = %v, want context.Canceled", err)
	}
}
