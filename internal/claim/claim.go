// Package claim implements the one-time linking of a preloaded roster row to
// a freshly provisioned login credential. Steps up to provisioning are pure
// validation and reads; the provision-then-link pair is made race-safe by a
// conditional linkage update with a compensating credential delete.
package claim

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sbaj179/School-Connect-2/internal/model"
	"github.com/sbaj179/School-Connect-2/internal/ratelimit"
)

var (
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidInput       = errors.New("missing fields")
	ErrSchoolNotFound     = errors.New("school not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrAlreadyClaimed     = errors.New("already claimed")
	ErrProvisioningFailed = errors.New("provisioning failed")
)

// Store is the slice of the repository the workflow needs. Lookups return nil
// on miss; only storage failures are errors.
type Store interface {
	SchoolByCode(ctx context.Context, schoolCode string) (*model.School, error)
	StudentProfileForClaim(ctx context.Context, schoolID, externalID string) (*model.Profile, error)
	TeacherProfileForClaim(ctx context.Context, schoolID, email string) (*model.Profile, error)
	ClaimProfile(ctx context.Context, profileID, identityID string, email *string) (bool, error)
}

// Provider is the credential collaborator: provisioning and the compensating
// delete.
type Provider interface {
	CreateUser(ctx context.Context, email, password string) (model.Identity, error)
	DeleteUser(ctx context.Context, identityID string) error
}

type Service struct {
	store    Store
	provider Provider
	limiter  *ratelimit.Limiter
}

func NewService(store Store, provider Provider, limiter *ratelimit.Limiter) *Service {
	return &Service{store: store, provider: provider, limiter: limiter}
}

type StudentRequest struct {
	SchoolCode string
	ExternalID string
	Password   string
	CallerIP   string
}

type StudentResult struct {
	// GeneratedEmail is set only when the login e-mail was synthesized;
	// a stored roster e-mail is never echoed back.
	GeneratedEmail string
}

type TeacherRequest struct {
	SchoolCode string
	Email      string
	Password   string
	CallerIP   string
}

// StudentEmail synthesizes the canonical login e-mail for a student roster
// row that has none on file. The same inputs always produce the same address;
// uniqueness of the external id within a school is a roster constraint, not
// checked here.
func StudentEmail(externalID, schoolCode string) string {
	id := strings.ToLower(strings.TrimSpace(externalID))
	id = strings.Join(strings.Fields(id), "")
	code := strings.ToLower(strings.TrimSpace(schoolCode))
	return "s" + id + "." + code + "@students.local"
}

func (s *Service) ClaimStudent(ctx context.Context, req StudentRequest) (StudentResult, error) {
	if !s.limiter.Admit(ctx, "claim-student:"+req.CallerIP).Allowed {
		return StudentResult{}, ErrRateLimited
	}
	if req.SchoolCode == "" || req.ExternalID == "" || req.Password == "" {
		return StudentResult{}, ErrInvalidInput
	}

	school, err := s.store.SchoolByCode(ctx, req.SchoolCode)
	if err != nil {
		return StudentResult{}, fmt.Errorf("resolve school: %w", err)
	}
	if school == nil {
		return StudentResult{}, ErrSchoolNotFound
	}

	profile, err := s.store.StudentProfileForClaim(ctx, school.ID, req.ExternalID)
	if err != nil {
		return StudentResult{}, fmt.Errorf("lookup student: %w", err)
	}
	if profile == nil {
		return StudentResult{}, ErrProfileNotFound
	}
	if profile.IdentityID != nil {
		return StudentResult{}, ErrAlreadyClaimed
	}

	loginEmail := ""
	synthesized := false
	if profile.Email != nil && *profile.Email != "" {
		loginEmail = *profile.Email
	} else {
		loginEmail = StudentEmail(req.ExternalID, req.SchoolCode)
		synthesized = true
	}

	createdIdentity, err := s.provider.CreateUser(ctx, loginEmail, req.Password)
	if err != nil {
		return StudentResult{}, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	if err := s.link(ctx, profile.ID, createdIdentity.ID, &loginEmail); err != nil {
		return StudentResult{}, err
	}

	if synthesized {
		return StudentResult{GeneratedEmail: loginEmail}, nil
	}
	return StudentResult{}, nil
}

func (s *Service) ClaimTeacher(ctx context.Context, req TeacherRequest) error {
	if !s.limiter.Admit(ctx, "claim-teacher:"+req.CallerIP).Allowed {
		return ErrRateLimited
	}
	if req.SchoolCode == "" || req.Email == "" || req.Password == "" {
		return ErrInvalidInput
	}

	school, err := s.store.SchoolByCode(ctx, req.SchoolCode)
	if err != nil {
		return fmt.Errorf("resolve school: %w", err)
	}
	if school == nil {
		return ErrSchoolNotFound
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	profile, err := s.store.TeacherProfileForClaim(ctx, school.ID, email)
	if err != nil {
		return fmt.Errorf("lookup teacher: %w", err)
	}
	if profile == nil {
		return ErrProfileNotFound
	}
	if profile.IdentityID != nil {
		return ErrAlreadyClaimed
	}

	createdIdentity, err := s.provider.CreateUser(ctx, email, req.Password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	return s.link(ctx, profile.ID, createdIdentity.ID, nil)
}

// link performs the conditional linkage update. A failed or zero-row update
// means a concurrent claim won; the just-created credential is deleted so the
// loser leaves nothing behind.
func (s *Service) link(ctx context.Context, profileID, identityID string, email *string) error {
	linked, err := s.store.ClaimProfile(ctx, profileID, identityID, email)
	if err != nil || !linked {
		_ = s.provider.DeleteUser(ctx, identityID)
		return ErrAlreadyClaimed
	}
	return nil
}
