//go:build unix

package tailer

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func openShared(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY|unix.O_CLOEXEC, 0)
}

// isSharingViolation: на unix блокировки рекомендательные, но открытие может временно
// отказать на занятых устройствах и сетевых файловых системах.
func isSharingViolation(err error) bool {
	return errors.Is(err, unix.EBUSY) || errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ETXTBSY)
}
