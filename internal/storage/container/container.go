// Package container encodes and decodes the header that precedes the
// compressed payload of every stored object.
//
// Layout (all integers unsigned big-endian, strings UTF-8):
//
//	magic                 2 bytes  0xFAFA
//	header_remaining_len  2 bytes  length of everything up to the payload
//	date_uploaded         5 bytes  unix seconds
//	writer_id             1 byte
//	mime_type             2-byte length + bytes
//	original_name         2-byte length + bytes
//	payload               remainder of the file
//
// The 5-byte timestamp covers 0 through 2^40-1 seconds, i.e. 1970-01-01
// through the year 36812. Readers tolerate bytes after original_name up to
// header_remaining_len so later versions can append fields.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
	"unicode/utf8"
)

// Format constants. Changing any of them breaks every stored object.
const (
	Magic uint16 = 0xFAFA

	magicSize     = 2
	lengthSize    = 2
	prefixSize    = magicSize + lengthSize
	timestampSize = 5
	writerIDSize  = 1
	stringLenSize = 2

	fixedFieldsSize = timestampSize + writerIDSize

	// MaxStringLen is the largest encodable mime type or original name, in bytes.
	MaxStringLen = math.MaxUint16

	// MaxTimestamp is the largest unix second representable in 5 bytes.
	MaxTimestamp = 1<<(8*timestampSize) - 1
)

var (
	// ErrCorruptContainer is returned by Decode for a bad magic value, a
	// truncated header, or fields that overrun the declared header length.
	ErrCorruptContainer = errors.New("container: corrupt header")

	// ErrHeaderTooLarge is returned by Encode when a string or the whole
	// variable section does not fit its 16-bit length field.
	ErrHeaderTooLarge = errors.New("container: header too large")

	// ErrInvalidField is returned by Encode for a timestamp outside the
	// 5-byte range or a string that is not valid UTF-8.
	ErrInvalidField = errors.New("container: invalid header field")
)

// Header is the decoded metadata block of a container.
type Header struct {
	Uploaded     time.Time
	WriterID     uint8
	MimeType     string
	OriginalName string
}

// remainingLen is the value of header_remaining_len for h.
func (h Header) remainingLen() int {
	return fixedFieldsSize + stringLenSize + len(h.MimeType) + stringLenSize + len(h.OriginalName)
}

// Size returns the full encoded header size, which is also the payload offset.
func (h Header) Size() int {
	return prefixSize + h.remainingLen()
}

func (h Header) validate() error {
	secs := h.Uploaded.Unix()
	if secs < 0 || secs > MaxTimestamp {
		return fmt.Errorf("%w: timestamp %d outside [0, %d]", ErrInvalidField, secs, int64(MaxTimestamp))
	}
	if len(h.MimeType) > MaxStringLen {
		return fmt.Errorf("%w: mime type is %d bytes", ErrHeaderTooLarge, len(h.MimeType))
	}
	if len(h.OriginalName) > MaxStringLen {
		return fmt.Errorf("%w: original name is %d bytes", ErrHeaderTooLarge, len(h.OriginalName))
	}
	if n := h.remainingLen(); n > math.MaxUint16 {
		return fmt.Errorf("%w: remaining length %d", ErrHeaderTooLarge, n)
	}
	if !utf8.ValidString(h.MimeType) {
		return fmt.Errorf("%w: mime type is not valid UTF-8", ErrInvalidField)
	}
	if !utf8.ValidString(h.OriginalName) {
		return fmt.Errorf("%w: original name is not valid UTF-8", ErrInvalidField)
	}
	return nil
}

// MarshalBinary returns the encoded header.
func (h Header) MarshalBinary() ([]byte, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}

	remaining := h.remainingLen()
	buf := make([]byte, 0, prefixSize+remaining)

	buf = binary.BigEndian.AppendUint16(buf, Magic)
	buf = binary.BigEndian.AppendUint16(buf, uint16(remaining))
	buf = appendUint(buf, uint64(h.Uploaded.Unix()), timestampSize)
	buf = append(buf, h.WriterID)
	buf = appendString(buf, h.MimeType)
	buf = appendString(buf, h.OriginalName)

	return buf, nil
}

// Encode writes the header for h to w in a single write and returns the
// number of bytes written. The payload is appended by the caller.
func Encode(w io.Writer, h Header) (int, error) {
	buf, err := h.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("writing container header: %w", err)
	}
	return n, nil
}

// Decode reads a header from r and returns it along with the payload offset.
// On success r is positioned at the first payload byte; the payload itself
// is never read. I/O errors other than a short read are returned unwrapped
// from ErrCorruptContainer so callers can tell disk failures from bad data.
func Decode(r io.Reader) (Header, int64, error) {
	var prefix [prefixSize]byte
	if err := readFull(r, prefix[:], "prefix"); err != nil {
		return Header{}, 0, err
	}

	if magic := binary.BigEndian.Uint16(prefix[:magicSize]); magic != Magic {
		return Header{}, 0, fmt.Errorf("%w: magic %#04x", ErrCorruptContainer, magic)
	}

	remaining := int(binary.BigEndian.Uint16(prefix[magicSize:]))
	body := make([]byte, remaining)
	if err := readFull(r, body, "header body"); err != nil {
		return Header{}, 0, err
	}

	h, err := parseBody(body)
	if err != nil {
		return Header{}, 0, err
	}

	return h, int64(prefixSize + remaining), nil
}

func parseBody(body []byte) (Header, error) {
	c := cursor{buf: body}

	secs, err := c.uint(timestampSize, "date uploaded")
	if err != nil {
		return Header{}, err
	}
	writerID, err := c.uint(writerIDSize, "writer id")
	if err != nil {
		return Header{}, err
	}
	mimeType, err := c.string("mime type")
	if err != nil {
		return Header{}, err
	}
	originalName, err := c.string("original name")
	if err != nil {
		return Header{}, err
	}
	// anything left in c.buf is an unknown trailing field

	return Header{
		Uploaded:     time.Unix(int64(secs), 0).UTC(),
		WriterID:     uint8(writerID),
		MimeType:     mimeType,
		OriginalName: originalName,
	}, nil
}

func readFull(r io.Reader, buf []byte, what string) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated %s", ErrCorruptContainer, what)
		}
		return fmt.Errorf("reading container %s: %w", what, err)
	}
	return nil
}

type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) take(n int, what string) ([]byte, error) {
	if n > len(c.buf)-c.pos {
		return nil, fmt.Errorf("%w: %s overruns header (need %d bytes at offset %d of %d)",
			ErrCorruptContainer, what, n, c.pos, len(c.buf))
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) uint(width int, what string) (uint64, error) {
	b, err := c.take(width, what)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

func (c *cursor) string(what string) (string, error) {
	n, err := c.uint(stringLenSize, what+" length")
	if err != nil {
		return "", err
	}
	b, err := c.take(int(n), what)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func appendUint(buf []byte, v uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}
