package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	tracelog "github.com/opentracing/opentracing-go/log"
	"github.com/rtcheap/session-broker/internal/models"
)

// ErrNotFound returned when no session matches a lookup.
var ErrNotFound = errors.New("session not found")

// SessionRepository persistance interface for sessions.
type SessionRepository interface {
	Save(ctx context.Context, session models.Session) error
	FindByUniqueID(ctx context.Context, uniqueID string) (models.Session, error)
	FindAll(ctx context.Context) ([]models.Session, error)
}

// NewSessionRepository creates a new SQL SessionRepository.
func NewSessionRepository(db *sql.DB) SessionRepository {
	return &sessionRepo{
		db: db,
	}
}

type sessionRepo struct {
	db *sql.DB
}

const insertSessionQuery = `
	INSERT INTO session(
			id,
			type,
			unique_id,
			userurl,
			agora_channel_name,
			is_active,
			created_at,
			updated_at
		)
	VALUES
		(?, ?, ?, ?, ?, ?, ?, ?)`

func (r *sessionRepo) Save(ctx context.Context, s models.Session) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "session_repo_save")
	defer span.Finish()

	if !models.ValidType(s.Type) {
		err := fmt.Errorf("invalid session type %q", s.Type)
		span.LogFields(tracelog.Error(err))
		return err
	}

	createdAt, updatedAt := timestamps(s)
	_, err := r.db.ExecContext(
		ctx,
		insertSessionQuery,
		s.ID,
		s.Type,
		s.UniqueID,
		s.ShareURL,
		s.AgoraChannelName,
		s.Active,
		createdAt,
		updatedAt,
	)
	if err != nil {
		err = fmt.Errorf("failed to insert row into database. %w", err)
		span.LogFields(tracelog.Error(err))
		return err
	}

	return nil
}

const findSessionByUniqueIDQuery = `
	SELECT
		id,
		type,
		unique_id,
		userurl,
		agora_channel_name,
		is_active,
		created_at,
		updated_at
	FROM session
	WHERE
		unique_id = ?`

func (r *sessionRepo) FindByUniqueID(ctx context.Context, uniqueID string) (models.Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "session_repo_find_by_unique_id")
	defer span.Finish()

	s, err := scanSession(r.db.QueryRowContext(ctx, findSessionByUniqueIDQuery, uniqueID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		err = fmt.Errorf("failed to query database. %w", err)
		span.LogFields(tracelog.Error(err))
		return models.Session{}, err
	}

	return s, nil
}

const findAllSessionsQuery = `
	SELECT
		id,
		type,
		unique_id,
		userurl,
		agora_channel_name,
		is_active,
		created_at,
		updated_at
	FROM session
	ORDER BY created_at DESC`

func (r *sessionRepo) FindAll(ctx context.Context) ([]models.Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "session_repo_find_all")
	defer span.Finish()

	rows, err := r.db.QueryContext(ctx, findAllSessionsQuery)
	if err != nil {
		err = fmt.Errorf("failed to query for sessions %w", err)
		span.LogFields(tracelog.Error(err))
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			err = fmt.Errorf("failed to scan session %w", err)
			span.LogFields(tracelog.Error(err))
			return nil, err
		}
		sessions = append(sessions, s)
	}

	err = rows.Err()
	if err != nil {
		err = fmt.Errorf("failed to iterate over sessions %w", err)
		span.LogFields(tracelog.Error(err))
		return nil, err
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID,
		&s.Type,
		&s.UniqueID,
		&s.ShareURL,
		&s.AgoraChannelName,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)

	return s, err
}

func timestamps(s models.Session) (time.Time, time.Time) {
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = getNow()
	}

	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return createdAt.UTC().Truncate(models.TimePrecision), updatedAt.UTC().Truncate(models.TimePrecision)
}

func getNow() time.Time {
	return time.Now().UTC()
}
