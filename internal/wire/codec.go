package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxStringLen bounds a single framed string so a corrupt length prefix cannot
// trigger a huge allocation.
const MaxStringLen = 256 << 20

var (
	ErrShortRead   = errors.New("short read")
	ErrStringLimit = errors.New("framed string exceeds limit")
)

// readFull reads exactly len(buf) bytes. A peer that closes early yields
// ErrShortRead.
func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("reading %d bytes: %w", len(buf), ErrShortRead)
		}
		return err
	}
	return nil
}

func WriteUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func ReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func WriteUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func ReadUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// WriteBytes writes a u32 length prefix followed by p.
func WriteBytes(w io.Writer, p []byte) error {
	if len(p) > MaxStringLen {
		return ErrStringLimit
	}
	if err := WriteUint32(w, uint32(len(p))); err != nil {
		return fmt.Errorf("writing length: %w", err)
	}
	if _, err := w.Write(p); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	return nil
}

// ReadBytes reads a u32 length prefix and exactly that many bytes.
func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("reading length: %w", err)
	}
	if n > MaxStringLen {
		return nil, fmt.Errorf("length %d: %w", n, ErrStringLimit)
	}
	buf := make([]byte, n)
	if err := readFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return buf, nil
}

func WriteString(w io.Writer, s string) error {
	return WriteBytes(w, []byte(s))
}

func ReadString(r io.Reader) (string, error) {
	b, err := ReadBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
