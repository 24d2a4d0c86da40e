//go:build !unix

package app

import (
	"errors"
	"os"
)

var errLockHeld = errors.New("lock held")

// Without flock the lock file only marks the directory; nothing is enforced.
func flock(*os.File, bool) error { return nil }

func funlock(*os.File) {}
