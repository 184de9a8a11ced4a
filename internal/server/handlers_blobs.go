package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"credvault/internal/api"
	"credvault/internal/auth"
)

// multipartOverhead covers form fields and part headers around the content part.
const multipartOverhead = 1 << 20 // 1 MiB

func (s *Server) handleUploadBlob(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	if !principal.Can(auth.CapBlobUpload) {
		s.writeServiceError(w, r, forbidden(fmt.Errorf("not allowed to upload blobs")))
		return
	}

	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		r.Body = http.MaxBytesReader(w, r.Body, s.blobs.MaxUploadBytes()+multipartOverhead)
		if err := r.ParseMultipartForm(s.multipartMemory); err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		file, header, err := r.FormFile("content")
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("content is required"), ErrCodeMissingRequired))
			return
		}
		defer file.Close()

		mediaType := firstNonEmpty(r.FormValue("media_type"), header.Header.Get("Content-Type"))
		if mediaType == "" {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("media_type is required"), ErrCodeMissingRequired))
			return
		}

		result, err := s.blobs.Put(r.Context(), PutBlobInput{
			Content:    file,
			MediaType:  mediaType,
			Filename:   firstNonEmpty(r.FormValue("filename"), header.Filename),
			UploaderID: principal.UserID,
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if result.Duplicate {
			s.writeServiceError(w, r, duplicateBlobError(result.Blob))
			return
		}
		s.writeJSON(w, http.StatusCreated, result.Blob)
	})
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	digest, err := requireDigestPath(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	blob, err := s.blobs.Get(r.Context(), digest)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, blob)
}

func (s *Server) handleBlobContent(w http.ResponseWriter, r *http.Request) {
	digest, err := requireDigestPath(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	content, err := s.blobs.Open(r.Context(), digest)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Reader.Close()

	w.Header().Set("Content-Type", content.Blob.MediaType)
	w.Header().Set("Content-Length", strconv.FormatInt(content.Blob.SizeBytes, 10))
	w.Header().Set("ETag", `"`+content.Blob.SHA256+`"`)
	if name := strings.TrimSpace(content.Blob.Filename); name != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content.Reader); err != nil {
		s.log().Warn("stream blob content", "sha256", content.Blob.SHA256, "error", err)
	}
}

func (s *Server) handleBlobReferences(w http.ResponseWriter, r *http.Request) {
	digest, err := requireDigestPath(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	blob, refs, err := s.blobs.CountReferences(r.Context(), digest)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.BlobReferencesResponse{
		SHA256:     blob.SHA256,
		BlobID:     blob.ID,
		References: refs,
	})
}

func (s *Server) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	if !principalFromContext(r.Context()).Can(auth.CapBlobDelete) {
		s.writeServiceError(w, r, forbidden(fmt.Errorf("not allowed to delete blobs")))
		return
	}
	digest, err := requireDigestPath(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	blob, err := s.blobs.SafeDelete(r.Context(), digest)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, blob)
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}
	return badRequestCode(err, ErrCodeInvalidArgument)
}
