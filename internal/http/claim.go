package http

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sbaj179/School-Connect-2/internal/claim"
)

type claimStudentRequest struct {
	SchoolCode string `json:"school_code"`
	ExternalID string `json:"external_id"`
	Password   string `json:"password"`
}

type claimTeacherRequest struct {
	SchoolCode string `json:"school_code"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type claimResponse struct {
	Success        bool   `json:"success"`
	GeneratedEmail string `json:"generated_email,omitempty"`
}

func (s *Server) handleClaimStudent(w http.ResponseWriter, r *http.Request) {
	var req claimStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Missing fields.")
		return
	}

	result, err := s.claims.ClaimStudent(r.Context(), claim.StudentRequest{
		SchoolCode: req.SchoolCode,
		ExternalID: req.ExternalID,
		Password:   req.Password,
		CallerIP:   clientIP(r),
	})
	if err != nil {
		writeClaimError(w, err, "Student ID not found.")
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{Success: true, GeneratedEmail: result.GeneratedEmail})
}

func (s *Server) handleClaimTeacher(w http.ResponseWriter, r *http.Request) {
	var req claimTeacherRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Missing fields.")
		return
	}

	err := s.claims.ClaimTeacher(r.Context(), claim.TeacherRequest{
		SchoolCode: req.SchoolCode,
		Email:      req.Email,
		Password:   req.Password,
		CallerIP:   clientIP(r),
	})
	if err != nil {
		writeClaimError(w, err, "Teacher not invited / not preloaded.")
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{Success: true})
}

// writeClaimError maps workflow outcomes to statuses; notFoundMessage varies
// by role. Anything outside the taxonomy is a storage fault.
func writeClaimError(w http.ResponseWriter, err error, notFoundMessage string) {
	switch {
	case errors.Is(err, claim.ErrRateLimited):
		writeMessage(w, http.StatusTooManyRequests, "Too many attempts.")
	case errors.Is(err, claim.ErrInvalidInput):
		writeMessage(w, http.StatusBadRequest, "Missing fields.")
	case errors.Is(err, claim.ErrSchoolNotFound):
		writeMessage(w, http.StatusNotFound, "School code not found.")
	case errors.Is(err, claim.ErrProfileNotFound):
		writeMessage(w, http.StatusNotFound, notFoundMessage)
	case errors.Is(err, claim.ErrAlreadyClaimed):
		writeMessage(w, http.StatusConflict, "Already claimed — sign in.")
	case errors.Is(err, claim.ErrProvisioningFailed):
		log.Error().Err(err).Msg("claim provisioning failed")
		writeMessage(w, http.StatusInternalServerError, "Unable to create user.")
	default:
		log.Error().Err(err).Msg("claim storage failure")
		writeMessage(w, http.StatusInternalServerError, "Unexpected error.")
	}
}
