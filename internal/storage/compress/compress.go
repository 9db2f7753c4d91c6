// Package compress holds the transform stages between an object's raw bytes
// and the compressed payload kept on disk. The scheme is gzip; every stage is
// streaming and owns only its own buffer.
package compress

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Encoding is the HTTP content-coding token of the stored payload.
const Encoding = "gzip"

// Compression levels accepted by NewWriter.
const (
	BestSpeed          = gzip.BestSpeed
	BestCompression    = gzip.BestCompression
	DefaultCompression = gzip.DefaultCompression
)

// NewWriter returns a compressing stage that writes into dst. Close flushes
// the gzip trailer but leaves dst open; dst stays owned by the caller.
func NewWriter(dst io.Writer, level int) (io.WriteCloser, error) {
	zw, err := gzip.NewWriterLevel(dst, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	return zw, nil
}

// Copy streams src through a compressing stage into dst and returns the
// number of uncompressed bytes consumed.
func Copy(dst io.Writer, src io.Reader, level int) (int64, error) {
	zw, err := NewWriter(dst, level)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(zw, src)
	if err != nil {
		_ = zw.Close()
		return n, err
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("gzip close: %w", err)
	}
	return n, nil
}

// reader decompresses src and takes ownership of it.
type reader struct {
	zr  *gzip.Reader
	src io.ReadCloser
}

// NewReader returns a decompressing stage over src. Closing the returned
// reader closes src as well.
func NewReader(src io.ReadCloser) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	return &reader{zr: zr, src: src}, nil
}

func (r *reader) Read(p []byte) (int, error) {
	return r.zr.Read(p)
}

func (r *reader) Close() error {
	zerr := r.zr.Close()
	if err := r.src.Close(); err != nil {
		return err
	}
	return zerr
}

// AcceptsEncoding reports whether an Accept-Encoding header value allows
// Encoding. An explicit q=0 for gzip wins over a wildcard.
//
// An empty or absent header returns false on purpose: RFC 9110 would allow
// any coding there, but such clients get the decompressed stream instead.
func AcceptsEncoding(header string) bool {
	if strings.TrimSpace(header) == "" {
		return false
	}
	wildcard := false
	for _, part := range strings.Split(header, ",") {
		coding, q := parseCoding(part)
		switch coding {
		case Encoding, "x-gzip":
			return q > 0
		case "*":
			wildcard = q > 0
		}
	}
	return wildcard
}

func parseCoding(part string) (string, float64) {
	fields := strings.Split(part, ";")
	coding := strings.ToLower(strings.TrimSpace(fields[0]))
	q := 1.0
	for _, param := range fields[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || strings.ToLower(strings.TrimSpace(key)) != "q" {
			continue
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			q = 0
			continue
		}
		q = parsed
	}
	return coding, q
}
