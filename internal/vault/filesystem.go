package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bm-go/internal/bm"
)

// FileSystemVault stores each payload as a file, fanned out by the first two
// characters of its uid:
//
//	<root>/
//	  payloads/
//	    ab/
//	      ab34...   (one file per content uid)
type FileSystemVault struct {
	root       string
	payloadDir string
}

var _ bm.Vault = (*FileSystemVault)(nil)

func NewFileSystemVault(root string) (*FileSystemVault, error) {
	payloadDir := filepath.Join(root, "payloads")
	if err := os.MkdirAll(payloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create payload directory: %w", err)
	}
	return &FileSystemVault{root: root, payloadDir: payloadDir}, nil
}

// path maps uid to its file. Uids that could name a file outside the
// payload directory are refused.
func (v *FileSystemVault) path(uid string) (string, error) {
	if !bm.IsValidContentUID(uid) {
		return "", fmt.Errorf("invalid content uid %q", uid)
	}
	if len(uid) < 2 {
		return filepath.Join(v.payloadDir, "_", uid), nil
	}
	return filepath.Join(v.payloadDir, uid[:2], uid), nil
}

// WritePayload writes to a temp file and renames it into place, so readers
// never see a partial payload.
func (v *FileSystemVault) WritePayload(ctx context.Context, r io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	uid := bm.NewContentUID()
	dest, err := v.path(uid)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create fan-out directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	committed = true
	return uid, nil
}

func (v *FileSystemVault) ReadPayload(ctx context.Context, uid string, w io.Writer) error {
	p, err := v.path(uid)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(uid)
	}
	if err != nil {
		return fmt.Errorf("failed to open payload: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	return nil
}

func (v *FileSystemVault) DeletePayload(ctx context.Context, uid string) error {
	p, err := v.path(uid)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete payload %s: %w", uid, err)
	}
	return nil
}

func (v *FileSystemVault) ListPayloads(ctx context.Context, prefix string) ([]string, error) {
	var uids []string
	err := filepath.WalkDir(v.payloadDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip fan-out directories that cannot hold a match.
			if path != v.payloadDir && len(prefix) >= 2 && d.Name() != prefix[:2] {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".tmp-") || !strings.HasPrefix(name, prefix) {
			return nil
		}
		uids = append(uids, name)
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing payloads: %w", err)
	}
	sort.Strings(uids)
	return uids, nil
}

// ValidateSetup checks that the payload directory exists and is writable.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(v.payloadDir)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path is not a directory: %s", v.payloadDir)
	}

	check, err := os.CreateTemp(v.payloadDir, ".tmp-writable-*")
	if err != nil {
		return fmt.Errorf("vault not writable: %w", err)
	}
	check.Close()
	return os.Remove(check.Name())
}
