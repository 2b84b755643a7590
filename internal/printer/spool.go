// Package printer delivers encoded receipts to the physical printing path.
// The default backend writes each copy to a spool directory watched by the
// local driver bridge; the dispatcher stays agnostic of the mechanism.
package printer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/xid"
)

type Spool struct {
	dir string
}

func NewSpool(dir string) (*Spool, error) {
	if dir == "" {
		return nil, fmt.Errorf("spool: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("spool: create %s: %w", dir, err)
	}
	return &Spool{dir: dir}, nil
}

// Print writes one receipt copy as its own fsynced file. The .tmp rename
// keeps the bridge from picking up half-written streams.
func (s *Spool) Print(ctx context.Context, job domain.PrintJob, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := fmt.Sprintf("receipt-%s-%s.bin", job.OrderID, xid.New("cp"))
	tmp := filepath.Join(s.dir, name+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("spool order %q: %w", job.OrderID, err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("spool order %q: write: %w", job.OrderID, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("spool order %q: sync: %w", job.OrderID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("spool order %q: close: %w", job.OrderID, err)
	}

	final := filepath.Join(s.dir, name)
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("spool order %q: publish: %w", job.OrderID, err)
	}
	return nil
}
