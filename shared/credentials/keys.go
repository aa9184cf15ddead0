// Package credentials provides the Gemini key-management capability. Callers
// receive a Capability explicitly; nothing here probes the environment.
package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/term"
)

var (
	// ErrUnavailable is returned when no key manager is wired in.
	ErrUnavailable = errors.New("key management is not available")
	// ErrNoKey is returned by Key when nothing has been selected yet.
	ErrNoKey = errors.New("no API key selected")
	// ErrSelectUnsupported is returned by managers with a fixed key.
	ErrSelectUnsupported = errors.New("key selection is not supported")
)

// KeyManager selects and reports the API key used for provider calls.
type KeyManager interface {
	HasKey(ctx context.Context) (bool, error)
	SelectKey(ctx context.Context) error
	Key(ctx context.Context) (string, error)
}

// Capability is either Available with a KeyManager or Unavailable.
type Capability struct {
	manager KeyManager
}

func Available(m KeyManager) Capability {
	return Capability{manager: m}
}

func Unavailable() Capability {
	return Capability{}
}

// Manager returns the key manager and whether one is available.
func (c Capability) Manager() (KeyManager, bool) {
	return c.manager, c.manager != nil
}

// CanSelect reports whether the user can be asked to pick a different key.
func (c Capability) CanSelect() bool {
	if c.manager == nil {
		return false
	}
	_, static := c.manager.(StaticKey)
	return !static
}

// Key resolves the current key through the manager, if any.
func (c Capability) Key(ctx context.Context) (string, error) {
	if c.manager == nil {
		return "", ErrUnavailable
	}
	return c.manager.Key(ctx)
}

// StaticKey is a key fixed by configuration.
type StaticKey string

func (s StaticKey) HasKey(context.Context) (bool, error) { return s != "", nil }

func (s StaticKey) SelectKey(context.Context) error { return ErrSelectUnsupported }

func (s StaticKey) Key(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoKey
	}
	return string(s), nil
}

// FileKeyManager keeps the selected key in a 0600 file so it survives restarts.
type FileKeyManager struct {
	path   string
	prompt io.Writer
	read   func() (string, error)
	mu     sync.Mutex
}

// NewFileKeyManager stores keys at path and reads new ones from the terminal
// attached to stdin without echo.
func NewFileKeyManager(path string) *FileKeyManager {
	return &FileKeyManager{
		path:   path,
		prompt: os.Stderr,
		read:   readSecretFromTerminal,
	}
}

func (f *FileKeyManager) HasKey(ctx context.Context) (bool, error) {
	_, err := f.Key(ctx)
	if errors.Is(err, ErrNoKey) {
		return false, nil
	}
	return err == nil, err
}

func (f *FileKeyManager) Key(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoKey
		}
		return "", fmt.Errorf("failed to read key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", ErrNoKey
	}
	return key, nil
}

// SelectKey asks for a new key and replaces the stored one.
func (f *FileKeyManager) SelectKey(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprint(f.prompt, "Enter Gemini API key (input hidden): ")
	key, err := f.read()
	fmt.Fprintln(f.prompt)
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrNoKey
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := saveKey(f.path, key); err != nil {
		return err
	}
	log.Info("API key saved", "path", f.path)
	return nil
}

func saveKey(path, key string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("unable to create key directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("unable to store key: %w", err)
	}
	return nil
}

func readSecretFromTerminal() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		return string(b), err
	}
	// Piped input, e.g. `echo $KEY | reviver key select`.
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return line, nil
}
