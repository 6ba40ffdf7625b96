package rfi

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// HashFunc creates a new hash.Hash instance.
type HashFunc func() hash.Hash

// Default size for the buffer used when hashing files
const defaultBufferSize = 32 * 1024 // 32KB

// bufferPool is a pool of byte slices used for file I/O during hashing
var bufferPool = sync.Pool{
	New: func() interface{} {
		buffer := make([]byte, defaultBufferSize)
		return &buffer
	},
}

// Fingerprinter computes content fingerprints of files. The hash only has to
// detect that bytes changed between a dump and a restore; it is not a security
// boundary, so a fast non-cryptographic hash is used.
type Fingerprinter struct {
	fs       afero.Fs
	hashFunc HashFunc
}

// NewFingerprinter returns a Fingerprinter reading from fsys.
// A nil hashFunc selects xxHash64.
func NewFingerprinter(fsys afero.Fs, hashFunc HashFunc) *Fingerprinter {
	if hashFunc == nil {
		hashFunc = defaultHashFunc
	}
	return &Fingerprinter{fs: fsys, hashFunc: hashFunc}
}

// File returns the hex-encoded fingerprint of the file at path.
// The returned error keeps fs.ErrNotExist visible for missing files.
func (f *Fingerprinter) File(path string) (string, error) {
	file, err := f.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := f.hashFunc()
	if err := hashContent(file, h); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashContent hashes the content from a reader using the provided hash function.
func hashContent(content io.Reader, h hash.Hash) error {
	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	if _, err := io.CopyBuffer(h, content, buffer); err != nil {
		return fmt.Errorf("failed to copy content: %w", err)
	}
	return nil
}

func defaultHashFunc() hash.Hash {
	return xxhash.New()
}
