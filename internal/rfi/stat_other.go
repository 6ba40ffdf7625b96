//go:build !unix

package rfi

import "io/fs"

func statMode(info fs.FileInfo) uint32 {
	return posixMode(info.Mode())
}
