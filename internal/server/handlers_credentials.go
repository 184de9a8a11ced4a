package server

import (
	"net/http"

	"credvault/internal/api"
	"credvault/internal/models"
)

func (s *Server) handleCreateCredential(kind models.CredentialKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.CredentialCreateRequest
		if !s.decodeJSONReq(w, r, &req) {
			return
		}
		record, err := s.credentials.Submit(r.Context(), principalFromContext(r.Context()), kind, SubmitCredentialInput{
			PersonID:    req.PersonID,
			TypeID:      req.TypeID,
			Description: req.Description,
			BlobSHA256:  req.BlobSHA256,
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, record)
	}
}

func (s *Server) handleGetCredential(kind models.CredentialKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireCredentialPath(r, kind)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		record, err := s.credentials.Get(r.Context(), principalFromContext(r.Context()), kind, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, record)
	}
}

func (s *Server) handleListCredentials(kind models.CredentialKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := s.credentials.ListByPerson(r.Context(), principalFromContext(r.Context()), kind, r.PathValue("id"))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, records)
	}
}

func (s *Server) handleDecideCredential(kind models.CredentialKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireCredentialPath(r, kind)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		var req api.DecisionRequest
		if !s.decodeJSONReq(w, r, &req) {
			return
		}
		record, err := s.workflow.Decide(r.Context(), principalFromContext(r.Context()), kind, id, DecideInput{
			State:         req.State,
			Justification: req.Justification,
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, record)
	}
}

func (s *Server) handleDeleteCredential(kind models.CredentialKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireCredentialPath(r, kind)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		releaseBlob, err := queryBool(r, "release_blob")
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		result, err := s.credentials.Delete(r.Context(), principalFromContext(r.Context()), kind, id, releaseBlob)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.CredentialDeleteResponse{
			Credential:     result.Credential,
			BlobReleased:   result.BlobReleased,
			BlobReferences: result.BlobReferences,
		})
	}
}
