//go:build !unix && !windows

package platform

// IsCrossDevice always reports false on platforms without rename errno
func IsCrossDevice(err error) bool { return false }

// IsNoSpace always reports false on platforms without errno support
func IsNoSpace(err error) bool { return false }

// IsNotEmpty always reports false on platforms without errno support
func IsNotEmpty(err error) bool { return false }
