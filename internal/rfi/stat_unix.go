//go:build unix

package rfi

import (
	"io/fs"
	"syscall"
)

// statMode returns the raw st_mode of info, falling back to a conversion of
// the Go FileMode when info does not come from the OS (e.g. an in-memory fs).
func statMode(info fs.FileInfo) uint32 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint32(st.Mode)
	}
	return posixMode(info.Mode())
}
