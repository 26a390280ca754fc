//go:build linux

package fileserve

import "golang.org/x/sys/unix"

// adviseSequential tells the kernel f is about to be read front to back.
// Files not backed by a descriptor are ignored.
func adviseSequential(f any, size int64) {
	fd, ok := f.(interface{ Fd() uintptr })
	if !ok {
		return
	}
	_ = unix.Fadvise(int(fd.Fd()), 0, size, unix.FADV_SEQUENTIAL)
}
