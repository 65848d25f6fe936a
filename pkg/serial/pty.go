package serial

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"golang.org/x/term"
)

// PTYTransport exposes the serial link as a pseudo-terminal device. The
// slave side of the pair is the "serial port" clients open; an optional
// symlink gives it a stable path across reallocations.
type PTYTransport struct {
	symlink string

	mu      sync.Mutex
	current *ptySession
	closed  bool
}

// NewPTY creates a PTY transport. symlinkPath, if non-empty, is maintained
// to point at the current slave device. No device is allocated until Open.
func NewPTY(symlinkPath string) *PTYTransport {
	return &PTYTransport{symlink: symlinkPath}
}

// Name returns "pty".
func (t *PTYTransport) Name() string {
	return "pty"
}

// Open allocates a fresh pseudo-terminal pair and refreshes the symlink.
// Unlike TCP there is no peer to wait for: the session is up as soon as the
// device exists, and reads simply block until a client writes.
func (t *PTYTransport) Open(_ context.Context) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.current != nil {
		t.current.Close()
		t.current = nil
	}

	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate pty: %w", err)
	}

	// Disable the line discipline: no echo, no canonical buffering. The
	// device must behave like a dumb serial port.
	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("failed to set pty raw mode: %w", err)
	}

	if t.symlink != "" {
		// Replace a stale link from a previous run or allocation.
		_ = os.Remove(t.symlink)
		if err := os.Symlink(slave.Name(), t.symlink); err != nil {
			master.Close()
			slave.Close()
			return nil, fmt.Errorf("failed to link %s: %w", t.symlink, err)
		}
	}

	session := &ptySession{
		id:     uuid.New().String(),
		path:   slave.Name(),
		master: master,
		// Keeping our own slave descriptor open prevents EIO on the
		// master when the client closes and reopens the device.
		slave:  slave,
		reader: NewLineReader(master),
	}
	t.current = session
	return session, nil
}

// SlavePath returns the device path of the current session, or the empty
// string if none is open.
func (t *PTYTransport) SlavePath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return ""
	}
	return t.current.path
}

// Close releases the device pair and removes the symlink.
func (t *PTYTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.current != nil {
		t.current.Close()
		t.current = nil
	}
	if t.symlink != "" {
		_ = os.Remove(t.symlink)
	}
	return nil
}

type ptySession struct {
	id     string
	path   string
	master *os.File
	slave  *os.File
	reader *LineReader

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *ptySession) ID() string {
	return s.id
}

func (s *ptySession) RemoteAddr() string {
	return s.path
}

func (s *ptySession) ReadLine() (string, error) {
	return s.reader.ReadLine()
}

func (s *ptySession) Write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.master.Write(p)
	return err
}

func (s *ptySession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.master.Close()
		s.slave.Close()
	})
	return err
}
