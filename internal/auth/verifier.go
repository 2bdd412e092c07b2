package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired はアクセストークンの有効期限切れを表す。
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid は署名不正などで検証できないトークンを表す。
	ErrTokenInvalid = errors.New("token invalid")
)

// supabaseAudience はSupabaseが発行するユーザートークンのaud。
const supabaseAudience = "authenticated"

// Claims はSupabaseのアクセストークンのクレーム。
type Claims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// TokenVerifier はプロジェクトのJWTシークレットでアクセストークンをローカル検証する。
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewTokenVerifier はTokenVerifierを生成する。
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), now: time.Now}
}

// Verify はトークンを検証してクレームを返す。
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(supabaseAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	var c Claims
	tok, err := p.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if tok == nil || !tok.Valid || c.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return &c, nil
}
