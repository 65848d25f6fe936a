package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func lineEvent(dir Direction, text string) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Direction: dir,
		Layer:     LayerProtocol,
		Category:  CategoryLine,
		Line:      &LineEvent{Text: text, Size: len(text) + 1},
	}
}

func TestFileLoggerWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.rlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(lineEvent(DirectionIn, "$GS"))
	logger.Log(lineEvent(DirectionOut, "$OK 1 0"))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var texts []string
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		texts = append(texts, event.Line.Text)
	}

	if len(texts) != 2 || texts[0] != "$GS" || texts[1] != "$OK 1 0" {
		t.Errorf("read back %v", texts)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.rlog")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(lineEvent(DirectionIn, "$GV"))
		logger.Close()
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		if _, err := reader.Next(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
	}
	if count != 2 {
		t.Errorf("event count = %d after two sessions, want 2", count)
	}
}

func TestFileLoggerLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.rlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Close()
	logger.Log(lineEvent(DirectionIn, "$GS")) // must not panic
	if err := logger.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}
