// Package identity implements the credential provider behind the claim and
// session flows: user provisioning, password login, access-token validation
// and refresh-session revocation.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sbaj179/School-Connect-2/internal/auth"
	"github.com/sbaj179/School-Connect-2/internal/crypto"
	"github.com/sbaj179/School-Connect-2/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrInvalidSession     = errors.New("invalid session")
)

// Provider is the credential collaborator the rest of the application depends
// on. The claim workflow uses CreateUser/DeleteUser; the session gate uses
// GetUser/SignOut; the login and refresh handlers use the rest.
type Provider interface {
	CreateUser(ctx context.Context, email, password string) (model.Identity, error)
	DeleteUser(ctx context.Context, identityID string) error
	Authenticate(ctx context.Context, email, password, userAgent, ip string) (model.Session, error)
	GetUser(ctx context.Context, accessToken string) (model.Identity, error)
	SignOut(ctx context.Context, identityID string) error
	Refresh(ctx context.Context, refreshToken, userAgent, ip string) (model.Session, error)
}

type PG struct {
	pool       *pgxpool.Pool
	secret     string
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewPG(pool *pgxpool.Pool, secret, issuer string, accessTTL, refreshTTL time.Duration) *PG {
	return &PG{
		pool:       pool,
		secret:     secret,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (p *PG) CreateUser(ctx context.Context, email, password string) (model.Identity, error) {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return model.Identity{}, err
	}

	identity := model.Identity{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO identities (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, identity.ID, identity.Email, hash, identity.CreatedAt)
	if err != nil {
		return model.Identity{}, fmt.Errorf("create identity: %w", err)
	}
	return identity, nil
}

// DeleteUser removes the credential; refresh sessions cascade. Used as the
// compensating action when a claim loses the linkage race.
func (p *PG) DeleteUser(ctx context.Context, identityID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, identityID)
	return err
}

func (p *PG) Authenticate(ctx context.Context, email, password, userAgent, ip string) (model.Session, error) {
	var (
		identityID string
		hash       string
	)
	row := p.pool.QueryRow(ctx, `SELECT id, password_hash FROM identities WHERE lower(email) = lower($1)`, email)
	if err := row.Scan(&identityID, &hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, ErrInvalidCredentials
		}
		return model.Session{}, err
	}
	if err := crypto.CheckPassword(hash, password); err != nil {
		return model.Session{}, ErrInvalidCredentials
	}
	return p.issueSession(ctx, identityID, email, userAgent, ip)
}

// GetUser re-validates an access token against the identities table. A token
// that still verifies but whose identity row is gone fails with
// ErrIdentityNotFound; callers treat that as a stale session.
func (p *PG) GetUser(ctx context.Context, accessToken string) (model.Identity, error) {
	claims, err := auth.ParseToken(p.secret, accessToken)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	var identity model.Identity
	row := p.pool.QueryRow(ctx, `SELECT id, email, created_at FROM identities WHERE id = $1`, claims.IdentityID)
	if err := row.Scan(&identity.ID, &identity.Email, &identity.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Identity{}, ErrIdentityNotFound
		}
		return model.Identity{}, err
	}
	return identity, nil
}

func (p *PG) SignOut(ctx context.Context, identityID string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = $1
		WHERE identity_id = $2 AND revoked_at IS NULL
	`, time.Now().UTC(), identityID)
	return err
}

func (p *PG) Refresh(ctx context.Context, refreshToken, userAgent, ip string) (model.Session, error) {
	tokenHash := crypto.HashToken(refreshToken)

	var session model.RefreshSession
	row := p.pool.QueryRow(ctx, `
		SELECT id, identity_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address
		FROM refresh_sessions
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(
		&session.ID,
		&session.IdentityID,
		&session.TokenHash,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.RevokedAt,
		&session.UserAgent,
		&session.IPAddress,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, ErrInvalidSession
		}
		return model.Session{}, err
	}
	if session.RevokedAt != nil || session.ExpiresAt.Before(time.Now().UTC()) {
		return model.Session{}, ErrInvalidSession
	}

	var email string
	if err := p.pool.QueryRow(ctx, `SELECT email FROM identities WHERE id = $1`, session.IdentityID).Scan(&email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, ErrIdentityNotFound
		}
		return model.Session{}, err
	}

	// Rotation: the presented token is spent whether or not issuance succeeds.
	if _, err := p.pool.Exec(ctx, `UPDATE refresh_sessions SET revoked_at = $1 WHERE id = $2`, time.Now().UTC(), session.ID); err != nil {
		return model.Session{}, err
	}
	return p.issueSession(ctx, session.IdentityID, email, userAgent, ip)
}

func (p *PG) issueSession(ctx context.Context, identityID, email, userAgent, ip string) (model.Session, error) {
	accessToken, err := auth.NewAccessToken(p.secret, p.issuer, p.accessTTL, auth.Claims{
		IdentityID: identityID,
		Email:      email,
	})
	if err != nil {
		return model.Session{}, err
	}

	refreshToken, err := crypto.NewRefreshToken()
	if err != nil {
		return model.Session{}, err
	}

	now := time.Now().UTC()
	session := model.RefreshSession{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		TokenHash:  crypto.HashToken(refreshToken),
		CreatedAt:  now,
		ExpiresAt:  now.Add(p.refreshTTL),
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}
	if ip != "" && ip != "unknown" {
		session.IPAddress = &ip
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO refresh_sessions (id, identity_id, token_hash, created_at, expires_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, session.ID, session.IdentityID, session.TokenHash, session.CreatedAt, session.ExpiresAt, session.UserAgent, session.IPAddress)
	if err != nil {
		return model.Session{}, err
	}

	return model.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IdentityID:   identityID,
		ExpiresAt:    now.Add(p.accessTTL),
	}, nil
}
