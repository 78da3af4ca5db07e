// Package digest computes streaming MD5 digests of data files.
//
// MD5 is the checksum scientific data repositories expose in their file
// inventories, so it is what the manifest records. Digests are always
// computed incrementally over fixed-size buffers; memory use does not
// grow with file size.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"time"
)

// BufferSize is the read buffer used when digesting files.
const BufferSize = 64 * 1024

// File computes the MD5 of the file at path, returning the lowercase hex
// digest and the number of bytes read.
func File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, BufferSize)
	var size int64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			size += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// Stat reports whether path exists, and its size and modification time
// when it does. Any file type counts, directories included.
func Stat(path string) (exists bool, size int64, mtime time.Time, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, time.Time{}, nil
		}
		return false, 0, time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return true, info.Size(), info.ModTime(), nil
}

// Reader wraps an io.Reader, hashing bytes as they pass through. It is
// used by the transfer engine to digest content while it streams to or
// from the network, so files are never read twice.
type Reader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewReader returns a Reader hashing everything read from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: md5.New()}
}

func (d *Reader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.h.Write(p[:n])
		d.n += int64(n)
	}
	return n, err
}

// Sum returns the lowercase hex MD5 of the bytes read so far.
func (d *Reader) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// BytesRead returns the number of bytes read so far.
func (d *Reader) BytesRead() int64 {
	return d.n
}
