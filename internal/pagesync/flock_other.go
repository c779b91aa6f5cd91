//go:build !unix

package pagesync

import "os"

// No advisory locking outside unix; concurrent processes may share a profile.
func lockFile(f *os.File) error {
	return nil
}

func unlockFile(f *os.File) error {
	return nil
}
