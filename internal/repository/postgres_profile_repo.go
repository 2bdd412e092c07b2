package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/revculture/internal/model"
)

// PostgresProfileRepo はPostgreSQLに直接接続するプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p := &model.Profile{}
	var fullName, avatarURL, bio, location sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, full_name, avatar_url, bio, location, updated_at
		 FROM profiles WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Username, &fullName, &avatarURL, &bio, &location, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}

	p.FullName = nullStringPtr(fullName)
	p.AvatarURL = nullStringPtr(avatarURL)
	p.Bio = nullStringPtr(bio)
	p.Location = nullStringPtr(location)
	return p, nil
}

// Create はプロフィールを作成する。
// 競合時は何もせず、影響行数0をErrProfileExistsとして返す。
func (r *PostgresProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, username, full_name, avatar_url, bio, location, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Username, p.FullName, p.AvatarURL, p.Bio, p.Location, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProfileExists
	}
	return nil
}

// Update はnilでないフィールドのみを更新する。
func (r *PostgresProfileRepo) Update(ctx context.Context, id string, update model.ProfileUpdate, at time.Time) error {
	query, args := buildProfileUpdate(id, update, at)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// buildProfileUpdate は部分更新用のUPDATE文と引数を組み立てる。
// updated_atは常に更新対象に含める。
func buildProfileUpdate(id string, update model.ProfileUpdate, at time.Time) (string, []any) {
	var sets []string
	var args []any

	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("username", update.Username)
	add("full_name", update.FullName)
	add("avatar_url", update.AvatarURL)
	add("bio", update.Bio)
	add("location", update.Location)

	args = append(args, at)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	args = append(args, id)
	query := fmt.Sprintf("UPDATE profiles SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	return query, args
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
