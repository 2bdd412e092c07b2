package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/revculture/internal/model"
	"github.com/hitoshi/revculture/internal/repository"
)

const (
	profilesPath    = "/rest/v1/profiles"
	profileColumns  = "id,username,full_name,avatar_url,bio,location,updated_at"
	uniqueViolation = "23505"
)

// profileRow はPostgRESTが返すprofilesテーブルの行。
type profileRow struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  *string   `json:"full_name"`
	AvatarURL *string   `json:"avatar_url"`
	Bio       *string   `json:"bio"`
	Location  *string   `json:"location"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r profileRow) toModel() *model.Profile {
	return &model.Profile{
		ID:        r.ID,
		Username:  r.Username,
		FullName:  r.FullName,
		AvatarURL: r.AvatarURL,
		Bio:       r.Bio,
		Location:  r.Location,
		UpdatedAt: r.UpdatedAt,
	}
}

// ProfileTable はPostgREST経由でprofilesテーブルを操作するリポジトリ。
// 認可はcontextのアクセストークン（ContextWithAccessToken）で行われる。
type ProfileTable struct {
	client *Client
}

// NewProfileTable はProfileTableを生成する。
func NewProfileTable(client *Client) *ProfileTable {
	return &ProfileTable{client: client}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (t *ProfileTable) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	var rows []profileRow
	err := t.client.do(ctx, request{
		method: http.MethodGet,
		path:   profilesPath,
		query: url.Values{
			"id":     {"eq." + id},
			"select": {profileColumns},
		},
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toModel(), nil
}

// Create はプロフィールを作成する。主キー重複の場合はrepository.ErrProfileExistsを返す。
func (t *ProfileTable) Create(ctx context.Context, p *model.Profile) error {
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	body, err := jsonBody(profileRow{
		ID:        p.ID,
		Username:  p.Username,
		FullName:  p.FullName,
		AvatarURL: p.AvatarURL,
		Bio:       p.Bio,
		Location:  p.Location,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		return err
	}

	err = t.client.do(ctx, request{
		method: http.MethodPost,
		path:   profilesPath,
		header: http.Header{"Prefer": {"return=minimal"}},
		body:   body,
	}, nil)
	if isConflict(err) {
		return repository.ErrProfileExists
	}
	return err
}

// Update はnilでないフィールドとupdated_atを更新する。
// 対象行がない場合はrepository.ErrProfileNotFoundを返す。
func (t *ProfileTable) Update(ctx context.Context, id string, update model.ProfileUpdate, at time.Time) error {
	fields := map[string]any{"updated_at": at}
	if update.Username != nil {
		fields["username"] = *update.Username
	}
	if update.FullName != nil {
		fields["full_name"] = *update.FullName
	}
	if update.AvatarURL != nil {
		fields["avatar_url"] = *update.AvatarURL
	}
	if update.Bio != nil {
		fields["bio"] = *update.Bio
	}
	if update.Location != nil {
		fields["location"] = *update.Location
	}

	body, err := jsonBody(fields)
	if err != nil {
		return err
	}

	var rows []profileRow
	err = t.client.do(ctx, request{
		method: http.MethodPatch,
		path:   profilesPath,
		query: url.Values{
			"id":     {"eq." + id},
			"select": {profileColumns},
		},
		header: http.Header{"Prefer": {"return=representation"}},
		body:   body,
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return repository.ErrProfileNotFound
	}
	return nil
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusConflict || apiErr.Code == uniqueViolation
}

// compile-time interface check
var _ repository.ProfileRepository = (*ProfileTable)(nil)
