package rfi

import "io/fs"

// FileRecord holds the attributes of one tracked file at snapshot time.
// Path is relative to the working root of the dump.
type FileRecord struct {
	Path         string
	MtimeSeconds int64
	Mode         uint32 // raw POSIX st_mode, type bits included
	Hash         string
}

// POSIX st_mode bits used when the platform does not hand us a raw stat.
const (
	modeTypeRegular = 0o100000
	modeTypeDir     = 0o040000
	modeTypeSymlink = 0o120000
	modeSetuid      = 0o4000
	modeSetgid      = 0o2000
	modeSticky      = 0o1000
)

// posixMode converts a Go FileMode to a POSIX st_mode value.
func posixMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())
	switch {
	case m.IsRegular():
		mode |= modeTypeRegular
	case m.IsDir():
		mode |= modeTypeDir
	case m&fs.ModeSymlink != 0:
		mode |= modeTypeSymlink
	}
	if m&fs.ModeSetuid != 0 {
		mode |= modeSetuid
	}
	if m&fs.ModeSetgid != 0 {
		mode |= modeSetgid
	}
	if m&fs.ModeSticky != 0 {
		mode |= modeSticky
	}
	return mode
}

// permissionMode extracts the restorable permission bits of a stored st_mode.
func permissionMode(mode uint32) fs.FileMode {
	m := fs.FileMode(mode & 0o777)
	if mode&modeSetuid != 0 {
		m |= fs.ModeSetuid
	}
	if mode&modeSetgid != 0 {
		m |= fs.ModeSetgid
	}
	if mode&modeSticky != 0 {
		m |= fs.ModeSticky
	}
	return m
}
