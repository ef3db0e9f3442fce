package model

import "time"

const (
	RoleStudent = "student"
	RoleParent  = "parent"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

type School struct {
	ID         string
	SchoolCode string
	CreatedAt  time.Time
}

// Profile is a roster row preloaded by a school administrator. IdentityID is
// nil until the person claims the row; the claim sets it exactly once.
type Profile struct {
	ID         string
	SchoolID   string
	IdentityID *string
	Role       string
	Name       string
	Email      *string
	ExternalID *string
	ClassName  *string
	CreatedAt  time.Time
}

// Identity is a login credential held by the identity provider, separate from
// the roster row it may be linked to.
type Identity struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

type Session struct {
	AccessToken  string
	RefreshToken string
	IdentityID   string
	ExpiresAt    time.Time
}

type RefreshSession struct {
	ID         string
	IdentityID string
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	UserAgent  *string
	IPAddress  *string
}

type Group struct {
	ID                string
	SchoolID          string
	Subject           string
	StudentExternalID *string
	CreatedAt         time.Time
}

type Message struct {
	ID           string
	GroupID      string
	SchoolID     string
	SenderUserID string
	Body         string
	IsDeleted    bool
	CreatedAt    time.Time
}
