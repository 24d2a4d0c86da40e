package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrBackupRunning is returned when reconcile is asked to delete orphans
// while a backup holds the vault lock.
var ErrBackupRunning = errors.New("a backup is running against this vault")

// ErrReconcileRunning is returned by a backup started while reconcile is
// deleting orphans.
var ErrReconcileRunning = errors.New("reconcile is deleting orphans from this vault")

const lockFileName = "vault.lock"

// vaultLock is an advisory lock on a file in the base directory. Backups take
// it shared; deleting reconcile takes it exclusive, because payloads written
// by a running backup have no block rows until its next flush.
type vaultLock struct {
	f *os.File
}

func lockVault(baseDir string, exclusive bool) (*vaultLock, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(baseDir, lockFileName), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := flock(f, exclusive); err != nil {
		f.Close()
		return nil, err
	}
	return &vaultLock{f: f}, nil
}

// lockForBackup takes the shared lock.
func (a *App) lockForBackup() (*vaultLock, error) {
	l, err := lockVault(a.cfg.BaseDir, false)
	if errors.Is(err, errLockHeld) {
		return nil, ErrReconcileRunning
	}
	return l, err
}

// lockForReconcile takes the exclusive lock.
func (a *App) lockForReconcile() (*vaultLock, error) {
	l, err := lockVault(a.cfg.BaseDir, true)
	if errors.Is(err, errLockHeld) {
		return nil, ErrBackupRunning
	}
	return l, err
}

func (l *vaultLock) release() {
	funlock(l.f)
	l.f.Close()
}
