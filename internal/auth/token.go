// Package auth は署名付きアクセストークンの発行と検証を提供する。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/carmarket/internal/model"
)

// ErrConfiguration は署名設定（鍵、発行者、対象者）が欠けている場合のエラー。
// リクエスト起因ではなくサービスが機能しない状態を表す。
var ErrConfiguration = errors.New("token signing configuration is incomplete")

// ErrInvalidToken はトークンの検証に失敗した場合のエラー。
var ErrInvalidToken = errors.New("invalid token")

// Config はトークン署名の設定。
type Config struct {
	SecretKey         string
	Issuer            string
	Audience          string
	ExpirationMinutes int
}

// TokenSubject はトークンに埋め込むユーザー情報。
type TokenSubject struct {
	ID       string
	Email    string
	UserName string
	Image    string
}

// SubjectFromUser はユーザーからTokenSubjectを生成する。
func SubjectFromUser(u *model.User) TokenSubject {
	return TokenSubject{ID: u.ID, Email: u.Email, UserName: u.UserName, Image: u.Image}
}

// Claims はトークンのクレームセット。
// 固定のスカラークレームと可変長のロール名リストからなる。
type Claims struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	UserName string   `json:"userName"`
	Image    string   `json:"image"`
	Roles    []string `json:"role"`
	jwt.RegisteredClaims
}

// HasAnyRole はいずれかのロールを持つかを返す。
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, have := range c.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// TokenIssuer はHS256で署名したトークンを発行・検証する。
type TokenIssuer struct {
	cfg Config
	now func() time.Time
}

// Option はTokenIssuerのオプション。
type Option func(*TokenIssuer)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(i *TokenIssuer) {
		i.now = now
	}
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(cfg Config, opts ...Option) *TokenIssuer {
	i := &TokenIssuer{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *TokenIssuer) validateConfig() error {
	switch {
	case i.cfg.SecretKey == "":
		return fmt.Errorf("%w: secret key is empty", ErrConfiguration)
	case i.cfg.Issuer == "":
		return fmt.Errorf("%w: issuer is empty", ErrConfiguration)
	case i.cfg.Audience == "":
		return fmt.Errorf("%w: audience is empty", ErrConfiguration)
	}
	return nil
}

// Issue はユーザーとロールからトークンを発行する。
// 呼び出しごとに署名し直し、キャッシュはしない。
func (i *TokenIssuer) Issue(subject TokenSubject, roles []string) (string, error) {
	if err := i.validateConfig(); err != nil {
		return "", err
	}

	now := i.now()
	claims := Claims{
		ID:       subject.ID,
		Email:    subject.Email,
		UserName: subject.UserName,
		Image:    subject.Image,
		Roles:    append([]string{}, roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(i.cfg.ExpirationMinutes) * time.Minute)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.cfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse はトークンの署名、アルゴリズム、発行者、対象者、有効期限を検証してクレームを返す。
func (i *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	if err := i.validateConfig(); err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithAudience(i.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(i.cfg.SecretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
