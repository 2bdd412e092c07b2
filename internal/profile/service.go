// Package profile はプロフィールの取得・更新とアバター画像のアップロードを提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/revculture/internal/metrics"
	"github.com/hitoshi/revculture/internal/model"
	"github.com/hitoshi/revculture/internal/repository"
	"github.com/hitoshi/revculture/internal/security"
)

// 入力値の最大文字数（rune単位）
const (
	maxUsernameLen = 254
	maxFullNameLen = 100
	maxBioLen      = 500
	maxLocationLen = 100
)

// allowedImageTypes はアバターとして受け付けるMIMEタイプと保存時の拡張子。
var allowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// AvatarStore はアバター画像の保存先。*supabase.Bucketが実装する。
type AvatarStore interface {
	Upload(ctx context.Context, path, contentType string, data []byte, upsert bool) error
	PublicURL(path string) string
}

// Service はプロフィールのサービス層。
type Service struct {
	repo          repository.ProfileRepository
	avatars       AvatarStore
	sanitizer     security.TextSanitizer
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	maxAvatarSize int64
	now           func() time.Time
	newObjectID   func() string
}

// NewService はServiceを生成する。
func NewService(
	repo repository.ProfileRepository,
	avatars AvatarStore,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxAvatarSize int64,
) *Service {
	return &Service{
		repo:          repo,
		avatars:       avatars,
		sanitizer:     sanitizer,
		metrics:       collector,
		logger:        logger,
		maxAvatarSize: maxAvatarSize,
		now:           time.Now,
		newObjectID:   func() string { return uuid.NewString() },
	}
}

// GetProfile は指定IDのプロフィールを返す。存在しない場合はPROFILE_NOT_FOUNDのAPIErrorを返す。
func (s *Service) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if p == nil {
		return nil, model.NewProfileNotFoundError(id)
	}
	return p, nil
}

// CreateProfile はプロフィールを作成する。
// 既に存在する場合はrepository.ErrProfileExistsを返す。
func (s *Service) CreateProfile(ctx context.Context, p *model.Profile) error {
	username := s.sanitizer.Text(p.Username)
	if err := validateLength("username", username, maxUsernameLen, true); err != nil {
		return err
	}

	row := *p
	row.Username = username
	if row.FullName != nil {
		fullName := s.sanitizer.Text(*row.FullName)
		if err := validateLength("fullName", fullName, maxFullNameLen, false); err != nil {
			return err
		}
		row.FullName = &fullName
	}
	row.UpdatedAt = s.now()

	if err := s.repo.Create(ctx, &row); err != nil {
		if errors.Is(err, repository.ErrProfileExists) {
			return err
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// EnsureExists はプロフィールがなければ作成する。冪等であり、作成した場合はtrueを返す。
// 同時作成で競合した場合は既存として扱う。
func (s *Service) EnsureExists(ctx context.Context, id, username string, fullName *string) (bool, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.metrics.RecordProfileEnsure("failed")
		return false, fmt.Errorf("failed to look up profile: %w", err)
	}
	if existing != nil {
		s.metrics.RecordProfileEnsure("existing")
		return false, nil
	}

	err = s.CreateProfile(ctx, &model.Profile{ID: id, Username: username, FullName: fullName})
	if errors.Is(err, repository.ErrProfileExists) {
		s.metrics.RecordProfileEnsure("existing")
		return false, nil
	}
	if err != nil {
		s.metrics.RecordProfileEnsure("failed")
		return false, err
	}

	s.metrics.RecordProfileEnsure("created")
	s.logger.Info("profile created", slog.String("user_id", id))
	return true, nil
}

// UpsertProfile はプロフィールを部分更新し、更新後のプロフィールを返す。
// 行が存在しない場合はusernameが指定されていれば作成する。
func (s *Service) UpsertProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error) {
	cleaned, err := s.clean(update)
	if err != nil {
		return nil, err
	}

	err = s.repo.Update(ctx, id, cleaned, s.now())
	if errors.Is(err, repository.ErrProfileNotFound) {
		if cleaned.Username == nil {
			return nil, model.NewProfileNotFoundError(id)
		}
		p := &model.Profile{ID: id}
		cleaned.Apply(p)
		err = s.CreateProfile(ctx, p)
		if errors.Is(err, repository.ErrProfileExists) {
			// 作成と競合した場合は更新をやり直す
			err = s.repo.Update(ctx, id, cleaned, s.now())
		}
	}
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}

	return s.GetProfile(ctx, id)
}

// UploadAvatar は画像を検証してストレージに保存し、公開URLをプロフィールに記録する。
// 検証はストレージへのリクエスト前に行う。
func (s *Service) UploadAvatar(ctx context.Context, id, filename, contentType string, data []byte) (string, error) {
	ext, sniffed, err := s.validateImage(contentType, data)
	if err != nil {
		s.metrics.RecordAvatarUpload("rejected")
		return "", err
	}

	path := fmt.Sprintf("%s/%s.%s", id, s.newObjectID(), ext)
	if err := s.avatars.Upload(ctx, path, sniffed, data, false); err != nil {
		s.metrics.RecordAvatarUpload("failed")
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}

	publicURL := s.avatars.PublicURL(path)
	if _, err := s.UpsertProfile(ctx, id, model.ProfileUpdate{AvatarURL: &publicURL}); err != nil {
		s.metrics.RecordAvatarUpload("failed")
		return "", err
	}

	s.metrics.RecordAvatarUpload("success")
	s.logger.Info("avatar uploaded",
		slog.String("user_id", id),
		slog.String("filename", filename),
		slog.String("content_type", sniffed),
		slog.Int("size", len(data)),
	)
	return publicURL, nil
}

// validateImage は申告されたMIMEタイプ、内容から判定したMIMEタイプ、サイズを検証する。
func (s *Service) validateImage(contentType string, data []byte) (ext, sniffed string, err error) {
	if len(data) == 0 {
		return "", "", model.NewEmptyFileError()
	}
	if int64(len(data)) > s.maxAvatarSize {
		return "", "", model.NewFileTooLargeError(s.maxAvatarSize)
	}

	declared, _, parseErr := mime.ParseMediaType(contentType)
	if parseErr != nil {
		return "", "", model.NewUnsupportedFileTypeError(contentType)
	}
	if _, ok := allowedImageTypes[declared]; !ok {
		return "", "", model.NewUnsupportedFileTypeError(declared)
	}

	sniffed = http.DetectContentType(data)
	ext, ok := allowedImageTypes[sniffed]
	if !ok {
		return "", "", model.NewUnsupportedFileTypeError(sniffed)
	}
	return ext, sniffed, nil
}

// clean は更新内容を無害化して検証する。
func (s *Service) clean(update model.ProfileUpdate) (model.ProfileUpdate, error) {
	var out model.ProfileUpdate

	text := func(field string, in *string, max int, required bool) (*string, error) {
		if in == nil {
			return nil, nil
		}
		v := s.sanitizer.Text(*in)
		if err := validateLength(field, v, max, required); err != nil {
			return nil, err
		}
		return &v, nil
	}

	var err error
	if out.Username, err = text("username", update.Username, maxUsernameLen, true); err != nil {
		return out, err
	}
	if out.FullName, err = text("fullName", update.FullName, maxFullNameLen, false); err != nil {
		return out, err
	}
	if out.Bio, err = text("bio", update.Bio, maxBioLen, false); err != nil {
		return out, err
	}
	if out.Location, err = text("location", update.Location, maxLocationLen, false); err != nil {
		return out, err
	}

	if update.AvatarURL != nil {
		v := strings.TrimSpace(*update.AvatarURL)
		if v != "" {
			u, parseErr := url.Parse(v)
			if parseErr != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
				return out, model.NewValidationError("avatarUrl", "must be an http(s) URL")
			}
		}
		out.AvatarURL = &v
	}

	return out, nil
}

func validateLength(field, value string, max int, required bool) error {
	if required && value == "" {
		return model.NewValidationError(field, "is required")
	}
	if utf8.RuneCountInString(value) > max {
		return model.NewValidationError(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return nil
}
