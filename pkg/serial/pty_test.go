package serial

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestPTYOpenAndSymlink(t *testing.T) {
	link := filepath.Join(t.TempDir(), "ttyEVSIM0")
	transport := NewPTY(link)
	defer transport.Close()

	if transport.Name() != "pty" {
		t.Fatalf("Name() = %q, want pty", transport.Name())
	}

	session, err := transport.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	target, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("symlink missing: %v", err)
	}
	if target != session.RemoteAddr() {
		t.Errorf("symlink points at %q, session device is %q", target, session.RemoteAddr())
	}
	if transport.SlavePath() != session.RemoteAddr() {
		t.Errorf("SlavePath() = %q, want %q", transport.SlavePath(), session.RemoteAddr())
	}
}

func TestPTYRoundTrip(t *testing.T) {
	link := filepath.Join(t.TempDir(), "ttyEVSIM0")
	transport := NewPTY(link)
	defer transport.Close()

	session, err := transport.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	client, err := os.OpenFile(link, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("opening slave side failed: %v", err)
	}
	defer client.Close()

	if _, err := client.WriteString("$GS\r"); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	line, err := session.ReadLine()
	if err != nil || line != "$GS" {
		t.Fatalf("ReadLine = (%q, %v), want ($GS, nil)", line, err)
	}

	if err := session.Write([]byte("$OK 1 0\r")); err != nil {
		t.Fatalf("session write failed: %v", err)
	}
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if got := string(buf[:n]); got != "$OK 1 0\r" {
		t.Errorf("client read %q, want $OK 1 0\\r", got)
	}
}

func TestPTYCloseRemovesSymlink(t *testing.T) {
	link := filepath.Join(t.TempDir(), "ttyEVSIM0")
	transport := NewPTY(link)

	if _, err := transport.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := transport.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Errorf("symlink should be removed on Close, lstat err = %v", err)
	}
	if _, err := transport.Open(context.Background()); err != ErrTransportClosed {
		t.Errorf("Open after Close = %v, want ErrTransportClosed", err)
	}
}
