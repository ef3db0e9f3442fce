package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sbaj179/School-Connect-2/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SchoolByCode maps a human-entered school code to its school row. The code
// is trimmed and upper-cased before lookup; an unknown code returns nil with a
// nil error so callers can distinguish it from storage failures.
func (s *Store) SchoolByCode(ctx context.Context, schoolCode string) (*model.School, error) {
	normalized := strings.ToUpper(strings.TrimSpace(schoolCode))

	var school model.School
	row := s.pool.QueryRow(ctx, `SELECT id, school_code, created_at FROM schools WHERE school_code = $1`, normalized)
	if err := row.Scan(&school.ID, &school.SchoolCode, &school.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &school, nil
}

const profileColumns = `id, school_id, identity_id, role, name, email, external_id, class_name, created_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var profile model.Profile
	err := row.Scan(
		&profile.ID,
		&profile.SchoolID,
		&profile.IdentityID,
		&profile.Role,
		&profile.Name,
		&profile.Email,
		&profile.ExternalID,
		&profile.ClassName,
		&profile.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (s *Store) StudentProfileForClaim(ctx context.Context, schoolID, externalID string) (*model.Profile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM users
		WHERE school_id = $1 AND role = 'student' AND external_id = $2
	`, schoolID, externalID)
	return scanProfile(row)
}

func (s *Store) TeacherProfileForClaim(ctx context.Context, schoolID, email string) (*model.Profile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM users
		WHERE school_id = $1 AND role = 'teacher' AND lower(email) = $2
	`, schoolID, email)
	return scanProfile(row)
}

// ClaimProfile links a roster row to an identity, conditioned on the row still
// being unclaimed. The guard is a single conditional UPDATE so two concurrent
// claims cannot both win; the loser sees false. A non-nil email is written
// alongside the linkage (student claims persist the login e-mail).
func (s *Store) ClaimProfile(ctx context.Context, profileID, identityID string, email *string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET identity_id = $1, email = COALESCE($2, email)
		WHERE id = $3 AND identity_id IS NULL
	`, identityID, email, profileID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetProfileByIdentity resolves an authenticated identity to its roster row.
// nil means authenticated but unclaimed.
func (s *Store) GetProfileByIdentity(ctx context.Context, identityID string) (*model.Profile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM users
		WHERE identity_id = $1
	`, identityID)
	return scanProfile(row)
}

func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id, g.school_id, g.subject, g.student_external_id, g.created_at
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		var group model.Group
		if err := rows.Scan(&group.ID, &group.SchoolID, &group.Subject, &group.StudentExternalID, &group.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	var group model.Group
	row := s.pool.QueryRow(ctx, `
		SELECT id, school_id, subject, student_external_id, created_at
		FROM groups
		WHERE id = $1
	`, groupID)
	err := row.Scan(&group.ID, &group.SchoolID, &group.Subject, &group.StudentExternalID, &group.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (s *Store) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)
	`, groupID, userID).Scan(&exists)
	return exists, err
}

func (s *Store) ListGroupMessages(ctx context.Context, groupID string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, group_id, school_id, sender_user_id, body, is_deleted, created_at
		FROM messages
		WHERE group_id = $1 AND is_deleted = false
		ORDER BY created_at ASC
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// LatestGroupMessages returns the newest non-deleted message per group,
// reading the most recent messages across all groups in one IN-list query.
func (s *Store) LatestGroupMessages(ctx context.Context, groupIDs []string) (map[string]model.Message, error) {
	latest := make(map[string]model.Message, len(groupIDs))
	if len(groupIDs) == 0 {
		return latest, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, group_id, school_id, sender_user_id, body, is_deleted, created_at
		FROM messages
		WHERE group_id = ANY($1) AND is_deleted = false
		ORDER BY created_at DESC
		LIMIT 200
	`, groupIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	for _, message := range messages {
		if _, ok := latest[message.GroupID]; !ok {
			latest[message.GroupID] = message
		}
	}
	return latest, nil
}

func (s *Store) ProfileNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT id, name FROM users WHERE id = ANY($1)`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (s *Store) CreateMessage(ctx context.Context, message model.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, group_id, school_id, sender_user_id, body, is_deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, message.ID, message.GroupID, message.SchoolID, message.SenderUserID, message.Body, message.IsDeleted, message.CreatedAt)
	return err
}

func collectMessages(rows pgx.Rows) ([]model.Message, error) {
	var messages []model.Message
	for rows.Next() {
		var message model.Message
		err := rows.Scan(
			&message.ID,
			&message.GroupID,
			&message.SchoolID,
			&message.SenderUserID,
			&message.Body,
			&message.IsDeleted,
			&message.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}
