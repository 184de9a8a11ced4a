package server

import (
	"net/http"

	"credvault/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.repo.StoreInfo(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := api.InfoResponse{
		Driver:        info.Driver,
		SchemaVersion: info.SchemaVersion,
		BlobBackend:   s.objects.Backend(),
		Blobs:         info.Blobs,
		Documents:     info.Documents,
		Titles:        info.Titles,
		Contracts:     info.Contracts,
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	ap, ok := authPrincipalFromContext(r.Context())
	if !ok {
		s.writeUnauthorized(w, r, errInvalidCredentials)
		return
	}

	p := ap.Principal
	s.writeJSON(w, http.StatusOK, api.AuthMeResponse{
		Authenticated: ap.AuthType != "",
		AuthRequired:  ap.AuthRequired,
		AuthType:      ap.AuthType,
		UserID:        p.UserID,
		Username:      p.Username,
		Role:          string(p.Role),
		PersonID:      p.PersonID,
		Capabilities:  p.Capabilities.Strings(),
	})
}
