package server

import (
	"net/http"

	"credvault/internal/api"
)

func (s *Server) handleCreateContract(w http.ResponseWriter, r *http.Request) {
	var req api.ContractCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	contract, err := s.contracts.Create(r.Context(), principalFromContext(r.Context()), CreateContractInput{
		InstructorID:    req.InstructorID,
		PersonID:        req.PersonID,
		SubjectID:       req.SubjectID,
		PeriodID:        req.PeriodID,
		HoursLoad:       req.HoursLoad,
		HourlyRateCents: req.HourlyRateCents,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, contract)
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	contract, err := s.contracts.Get(r.Context(), principalFromContext(r.Context()), r.PathValue("public_id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, contract)
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.contracts.ListByInstructor(r.Context(), principalFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, contracts)
}

func (s *Server) handleDeleteContract(w http.ResponseWriter, r *http.Request) {
	contract, err := s.contracts.Delete(r.Context(), principalFromContext(r.Context()), r.PathValue("public_id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, contract)
}
