package printer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"odelivery/terminal/internal/domain"
)

func TestSpoolWritesOneFilePerCopy(t *testing.T) {
	dir := t.TempDir()
	spool, err := NewSpool(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}

	job := domain.PrintJob{OrderID: "4021"}
	payload := []byte{0x1b, 0x40, 'h', 'i'}

	if err := spool.Print(context.Background(), job, payload); err != nil {
		t.Fatalf("Print: %v", err)
	}
	if err := spool.Print(context.Background(), job, payload); err != nil {
		t.Fatalf("Print: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 spool files, got %d", len(entries))
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "receipt-4021-") || strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("unexpected spool file name %q", entry.Name())
		}
		content, err := os.ReadFile(filepath.Join(dir, "out", entry.Name()))
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if !bytes.Equal(content, payload) {
			t.Errorf("spool file content differs from payload")
		}
	}
}

func TestSpoolHonorsCancelledContext(t *testing.T) {
	spool, err := NewSpool(t.TempDir())
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := spool.Print(ctx, domain.PrintJob{OrderID: "1"}, []byte("x")); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
