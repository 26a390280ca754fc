//go:build !linux

package fileserve

func adviseSequential(any, int64) {}
