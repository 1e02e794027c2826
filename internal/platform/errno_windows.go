//go:build windows

package platform

import (
	"errors"
	"syscall"
)

const (
	errorNotSameDevice  = syscall.Errno(17)
	errorHandleDiskFull = syscall.Errno(39)
	errorDiskFull       = syscall.Errno(112)
	errorDirNotEmpty    = syscall.Errno(145)
)

// IsCrossDevice reports whether err is a rename across volumes
func IsCrossDevice(err error) bool {
	return errors.Is(err, errorNotSameDevice)
}

// IsNoSpace reports whether err means the target volume is full
func IsNoSpace(err error) bool {
	return errors.Is(err, errorDiskFull) || errors.Is(err, errorHandleDiskFull)
}

// IsNotEmpty reports whether err is a removal of a non-empty directory
func IsNotEmpty(err error) bool {
	return errors.Is(err, errorDirNotEmpty)
}
