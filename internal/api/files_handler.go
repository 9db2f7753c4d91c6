package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"ssfile/internal/middleware"
	"ssfile/internal/service"
	"ssfile/internal/storage/compress"
)

// uploadFieldName 是 multipart 中承载文件内容的字段名。
const uploadFieldName = "file"

// FileHandler 提供上传与下载端点。
type FileHandler struct {
	service        *service.FileService
	maxUploadBytes int64
}

func NewFileHandler(s *service.FileService, maxUploadBytes int64) *FileHandler {
	return &FileHandler{service: s, maxUploadBytes: maxUploadBytes}
}

// Upload 以流式方式读取 multipart 请求，把 file 字段写入存储后重定向到对象地址。
// 整个请求体不会被缓冲到内存或临时文件。
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	writerID, ok := middleware.WriterID(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "API KEY INVALID!")
		return
	}

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart/form-data body")
		return
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.writeUploadReadError(w, err)
			return
		}

		if part.FormName() != uploadFieldName {
			part.Close()
			continue
		}

		src := &sourceReader{r: part}
		result, err := h.service.Upload(r.Context(), service.UploadInput{
			OriginalName: part.FileName(),
			MimeType:     part.Header.Get("Content-Type"),
			WriterID:     writerID,
			Reader:       src,
		})
		part.Close()
		if err != nil {
			// 读取请求体失败属于客户端问题，不是存储故障
			if src.err != nil {
				h.writeUploadReadError(w, src.err)
				return
			}
			status, message := errorStatus(err)
			if status >= http.StatusInternalServerError {
				log.Error().Err(err).Uint8("writer", writerID).Msg("upload failed")
			}
			writeError(w, status, message)
			return
		}

		http.Redirect(w, r, "/"+result.Key, http.StatusFound)
		return
	}

	writeError(w, http.StatusBadRequest, "multipart body has no \"file\" part")
}

func (h *FileHandler) writeUploadReadError(w http.ResponseWriter, err error) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
		return
	}
	log.Debug().Err(err).Msg("malformed upload body")
	writeError(w, http.StatusBadRequest, "malformed multipart body")
}

// Download 返回对象内容。客户端接受 gzip 时直接发送磁盘上的压缩流。
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}

	accepts := compress.AcceptsEncoding(r.Header.Get("Accept-Encoding"))
	obj, err := h.service.Download(r.Context(), key, accepts)
	if err != nil {
		status, message := errorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("key", key).Msg("download failed")
		}
		writeError(w, status, message)
		return
	}
	defer obj.Close()

	headers := w.Header()
	headers.Set("Vary", "Accept-Encoding")
	headers.Set("Last-Modified", obj.Metadata.DateUploaded.UTC().Format(http.TimeFormat))

	if notModified(r, obj.Metadata.DateUploaded) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	mimeType := obj.Metadata.MimeType
	if strings.TrimSpace(mimeType) == "" {
		mimeType = service.DefaultMimeType
	}
	headers.Set("Content-Type", mimeType)
	headers.Set("Content-Disposition", contentDisposition(obj.Metadata.OriginalName))
	headers.Set("X-Content-Type-Options", "nosniff")
	if obj.Encoding != "" {
		headers.Set("Content-Encoding", obj.Encoding)
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		// 响应头已发送，只能记录日志
		log.Debug().Err(err).Str("key", key).Msg("download interrupted")
	}
}
