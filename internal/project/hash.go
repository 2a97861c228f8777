package project

import (
	"crypto/sha256"
	"errors"
	"io/fs"
	"os"
)

// Digest is a sha256 content hash.
type Digest [32]byte

// DigestBytes hashes data.
func DigestBytes(data []byte) Digest {
	return sha256.Sum256(data)
}

// DigestFile hashes the file at path. ok is false when the file does not exist.
func DigestFile(path string) (d Digest, ok bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Digest{}, false, nil
	}
	if err != nil {
		return Digest{}, false, err
	}
	return DigestBytes(data), true, nil
}
