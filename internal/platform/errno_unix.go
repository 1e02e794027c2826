//go:build unix

package platform

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsCrossDevice reports whether err is a rename across filesystems
func IsCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}

// IsNoSpace reports whether err means the target filesystem is full
func IsNoSpace(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT)
}

// IsNotEmpty reports whether err is a removal of a non-empty directory
func IsNotEmpty(err error) bool {
	return errors.Is(err, unix.ENOTEMPTY) || errors.Is(err, unix.EEXIST)
}
