//go:build !windows

package aio

import (
	"golang.org/x/sys/unix"

	"github.com/sanerun/aio/internal/kernel"
)

func closeFD(fd int) error { return unix.Close(fd) }

func readFileSync(fd int, buf []byte, offset int64) (int, bool, error) {
	return kernel.RunFileReadSync(fd, buf, offset)
}

func writeFileSync(fd int, buf []byte, offset int64) (int, error) {
	return kernel.RunFileWriteSync(fd, buf, offset)
}
