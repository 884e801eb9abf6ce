// Package fileid derives stable item ids for media files.
package fileid

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const (
	prefix = "img:"
	// SampleSize is how many bytes are hashed from each end of the file.
	SampleSize = 64 * 1024
)

// ContentID returns an id for the file at path derived from its size and the first and
// last SampleSize bytes. The id does not depend on where the file lives, so a moved or
// renamed photo keeps its embedding.
func ContentID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", path)
	}
	return FromReader(f, info.Size())
}

// FromReader computes the id for content of the given size read from r.
func FromReader(r io.ReaderAt, size int64) (string, error) {
	h := sha256.New()
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(size))
	h.Write(sizeBuf[:])

	head := size
	if head > SampleSize {
		head = SampleSize
	}
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, head)); err != nil {
		return "", fmt.Errorf("read head: %w", err)
	}
	if size > SampleSize {
		tailStart := size - SampleSize
		if tailStart < head {
			tailStart = head
		}
		if _, err := io.Copy(h, io.NewSectionReader(r, tailStart, size-tailStart)); err != nil {
			return "", fmt.Errorf("read tail: %w", err)
		}
	}
	return prefix + hex.EncodeToString(h.Sum(nil)), nil
}
