package server

import (
	"net/http"

	"credvault/internal/models"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check, info and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Identity.
	mux.HandleFunc("GET /v1/auth/me", s.withAuth(s.handleAuthMe))

	// Blobs.
	mux.HandleFunc("POST /v1/blobs", s.withAuth(s.handleUploadBlob))
	mux.HandleFunc("GET /v1/blobs/{digest}", s.withAuth(s.handleGetBlob))
	mux.HandleFunc("GET /v1/blobs/{digest}/content", s.withAuth(s.handleBlobContent))
	mux.HandleFunc("GET /v1/blobs/{digest}/references", s.withAuth(s.handleBlobReferences))
	mux.HandleFunc("DELETE /v1/blobs/{digest}", s.withAuth(s.handleDeleteBlob))

	// Documents and titles share one handler set parameterized by kind.
	for _, kind := range []models.CredentialKind{models.KindDocument, models.KindTitle} {
		plural := kind.Plural()
		mux.HandleFunc("POST /v1/"+plural, s.withAuth(s.handleCreateCredential(kind)))
		mux.HandleFunc("GET /v1/"+plural+"/{id}", s.withAuth(s.handleGetCredential(kind)))
		mux.HandleFunc("DELETE /v1/"+plural+"/{id}", s.withAuth(s.handleDeleteCredential(kind)))
		mux.HandleFunc("POST /v1/"+plural+"/{id}/decision", s.withAuth(s.handleDecideCredential(kind)))
		mux.HandleFunc("GET /v1/persons/{id}/"+plural, s.withAuth(s.handleListCredentials(kind)))
	}

	// Contracts.
	mux.HandleFunc("POST /v1/contracts", s.withAuth(s.handleCreateContract))
	mux.HandleFunc("GET /v1/contracts/{public_id}", s.withAuth(s.handleGetContract))
	mux.HandleFunc("DELETE /v1/contracts/{public_id}", s.withAuth(s.handleDeleteContract))
	mux.HandleFunc("GET /v1/instructors/{id}/contracts", s.withAuth(s.handleListContracts))

	// Catalog.
	mux.HandleFunc("POST /v1/catalog/import", s.withAuth(s.handleImportCatalog))
	mux.HandleFunc("GET /v1/credential-types", s.withAuth(s.handleListCredentialTypes))

	// Admin.
	mux.HandleFunc("POST /v1/admin/blobs/gc", s.withAuth(s.handleAdminGCBlobs))
	mux.HandleFunc("POST /v1/admin/users", s.withAuth(s.handleAdminCreateUser))
	mux.HandleFunc("GET /v1/admin/users", s.withAuth(s.handleAdminListUsers))
	mux.HandleFunc("PATCH /v1/admin/users/{username}", s.withAuth(s.handleAdminSetUserDisabled))
	mux.HandleFunc("DELETE /v1/admin/users/{username}", s.withAuth(s.handleAdminDeleteUser))

	return s.withRequestLogging(mux)
}
