package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type errorEnvelope struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}

// notModified 判断 If-Modified-Since 是否不早于上传时间（秒级精度）。
func notModified(r *http.Request, uploaded time.Time) bool {
	raw := r.Header.Get("If-Modified-Since")
	if raw == "" {
		return false
	}
	since, err := http.ParseTime(raw)
	if err != nil {
		return false
	}
	return !uploaded.Truncate(time.Second).After(since)
}

// contentDisposition 生成 inline 形式的 Content-Disposition，非 ASCII 文件名按 RFC 2231 编码。
func contentDisposition(filename string) string {
	if filename == "" {
		return "inline"
	}
	if v := mime.FormatMediaType("inline", map[string]string{"filename": filename}); v != "" {
		return v
	}
	log.Debug().Str("filename", filename).Msg("mime formatter rejected filename, using RFC 6266 form")
	return extendedDisposition(filename)
}

// extendedDisposition 按 RFC 6266 同时给出 ASCII 回退名和 UTF-8 的 filename*。
func extendedDisposition(filename string) string {
	var fallback, ext strings.Builder
	for _, r := range filename {
		if r >= ' ' && r < 0x7f && r != '"' && r != '\\' {
			fallback.WriteRune(r)
		} else {
			fallback.WriteByte('_')
		}
	}
	for i := 0; i < len(filename); i++ {
		c := filename[i]
		if isAttrChar(c) {
			ext.WriteByte(c)
			continue
		}
		fmt.Fprintf(&ext, "%%%02X", c)
	}
	return `inline; filename="` + fallback.String() + `"; filename*=UTF-8''` + ext.String()
}

// isAttrChar 对应 RFC 5987 的 attr-char。
func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

// sourceReader 记录上传流本身返回的错误，用于区分客户端问题和存储问题。
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}
