package wire

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ChunkSize is the copy buffer used for file bodies in both directions.
const ChunkSize = 8192

var ErrUnsafeName = errors.New("file name escapes destination")

// File is one named blob on the wire. Body must yield at least Size bytes.
type File struct {
	Name string
	Size uint64
	Body io.Reader
}

// SendFile writes the name, the u64 length and exactly f.Size bytes of body.
func SendFile(w io.Writer, f File) error {
	if err := WriteString(w, f.Name); err != nil {
		return fmt.Errorf("sending name %s: %w", f.Name, err)
	}
	if err := WriteUint64(w, f.Size); err != nil {
		return fmt.Errorf("sending size of %s: %w", f.Name, err)
	}
	buf := make([]byte, ChunkSize)
	n, err := io.CopyBuffer(w, io.LimitReader(f.Body, int64(f.Size)), buf)
	if err != nil {
		return fmt.Errorf("sending %s: %w", f.Name, err)
	}
	if uint64(n) != f.Size {
		return fmt.Errorf("sending %s: source ended after %d of %d bytes", f.Name, n, f.Size)
	}
	return nil
}

// SendPath sends the file at path under the wire name name.
func SendPath(w io.Writer, path, name string) (uint64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	size := uint64(info.Size())
	return size, SendFile(w, File{Name: name, Size: size, Body: fh})
}

// ReceiveFile reads one file from r into root and returns its wire name and size.
// A name with a separator lands in the matching sub-directory of root, which is
// created on demand. The target is opened exclusively so a repeated name fails.
func ReceiveFile(r io.Reader, root string) (string, uint64, error) {
	name, err := ReadString(r)
	if err != nil {
		return "", 0, fmt.Errorf("receiving name: %w", err)
	}
	size, err := ReadUint64(r)
	if err != nil {
		return name, 0, fmt.Errorf("receiving size of %s: %w", name, err)
	}

	rel := filepath.FromSlash(name)
	if name == "" || !filepath.IsLocal(rel) {
		// Skip the payload; the stream stays framed.
		if n, _ := io.CopyN(io.Discard, r, int64(size)); uint64(n) != size {
			return name, size, fmt.Errorf("%q: %w: skipped %d of %d bytes: %w", name, ErrUnsafeName, n, size, ErrShortRead)
		}
		return name, size, fmt.Errorf("%q: %w", name, ErrUnsafeName)
	}
	target := filepath.Join(root, rel)
	if strings.Contains(name, "/") {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return name, size, fmt.Errorf("creating directory for %s: %w", name, err)
		}
	}

	fh, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return name, size, fmt.Errorf("creating %s: %w", target, err)
	}
	buf := make([]byte, ChunkSize)
	n, copyErr := io.CopyBuffer(fh, io.LimitReader(r, int64(size)), buf)
	closeErr := fh.Close()
	if copyErr != nil {
		return name, size, fmt.Errorf("receiving %s: %w", name, copyErr)
	}
	if uint64(n) != size {
		return name, size, fmt.Errorf("receiving %s: got %d of %d bytes: %w", name, n, size, ErrShortRead)
	}
	if closeErr != nil {
		return name, size, fmt.Errorf("closing %s: %w", target, closeErr)
	}
	return name, size, nil
}
