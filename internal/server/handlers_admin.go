package server

import (
	"fmt"
	"net/http"

	"credvault/internal/api"
	"credvault/internal/auth"
)

func (s *Server) handleAdminGCBlobs(w http.ResponseWriter, r *http.Request) {
	if !principalFromContext(r.Context()).Can(auth.CapBlobDelete) {
		s.writeServiceError(w, r, forbidden(fmt.Errorf("not allowed to collect blobs")))
		return
	}
	apply, err := queryBool(r, "apply")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	batchSize, err := queryIntDefault(r, "batch_size", 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.withLimiter(w, r, s.gcLimiter, "gc", func() {
		result, err := s.blobs.GC(r.Context(), batchSize, apply)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.BlobGCResponse{
			DryRun:           result.DryRun,
			RowCandidates:    result.RowCandidates,
			RowsDeleted:      result.RowsDeleted,
			ObjectCandidates: result.ObjectCandidates,
			ObjectsDeleted:   result.ObjectsDeleted,
			FailedCount:      result.FailedCount,
			ReclaimedBytes:   result.ReclaimedBytes,
		})
	})
}

func (s *Server) handleImportCatalog(w http.ResponseWriter, r *http.Request) {
	var req api.CatalogImportRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	result, err := s.catalog.Import(r.Context(), principalFromContext(r.Context()), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CatalogImportResponse(result))
}

func (s *Server) handleListCredentialTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.catalog.ListCredentialTypes(r.Context(), r.URL.Query().Get("kind"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, types)
}
