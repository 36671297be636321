// Package account はユーザー登録・ログイン・メールアドレス確認のフローを提供する。
package account

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"log/slog"
	"net/url"

	"github.com/hitoshi/carmarket/internal/auth"
	"github.com/hitoshi/carmarket/internal/identity"
	"github.com/hitoshi/carmarket/internal/mail"
	"github.com/hitoshi/carmarket/internal/metrics"
	"github.com/hitoshi/carmarket/internal/model"
)

// 登録時に付与するロール
const defaultRole = model.RoleUser

// 確認メールの件名
const confirmMailSubject = "Email confirm"

// 業務メッセージ
const (
	msgEmailTaken      = "メールアドレス '%s' は既に使用されています。"
	msgUserNameTaken   = "ユーザー名 '%s' は既に使用されています。"
	msgUserNotFound    = "ユーザー '%s' が見つかりません。"
	msgWrongPassword   = "パスワードが正しくありません。"
	msgRegistered      = "登録が完了しました。"
	msgLoggedIn        = "ログインしました。"
	msgConfirmMailBody = `<a href="%s">メールアドレスを確認する</a>`
)

// CredentialStore はアカウントフローが利用する資格情報ストア。
// identity.Managerが実装する。
type CredentialStore interface {
	FindByName(ctx context.Context, userName string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, user *model.User, password string) (*identity.Result, error)
	CheckPassword(user *model.User, password string) bool
	GetRoles(ctx context.Context, user *model.User) ([]string, error)
	RoleExists(ctx context.Context, name string) (bool, error)
	AddToRole(ctx context.Context, user *model.User, roleName string) (*identity.Result, error)
	GenerateEmailConfirmationToken(ctx context.Context, user *model.User) (string, error)
	ConfirmEmail(ctx context.Context, user *model.User, token string) (*identity.Result, error)
}

// TokenIssuer はアクセストークンの発行インターフェース。
type TokenIssuer interface {
	Issue(subject auth.TokenSubject, roles []string) (string, error)
}

// RegisterRequest はユーザー登録の入力。
type RegisterRequest struct {
	Email    string `json:"email"`
	UserName string `json:"userName"`
	Password string `json:"password"`
	Image    string `json:"image,omitempty"`
}

// LoginRequest はログインの入力。
type LoginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// DeliveryResult は確認メール送信の結果。
// 送信の失敗はエラーとして返さず、OK=falseで表す。
type DeliveryResult struct {
	OK bool
}

// Service はアカウント関連のフロー。
type Service struct {
	store   CredentialStore
	issuer  TokenIssuer
	mailer  mail.Sender
	metrics metrics.MetricsCollector
	baseURL string
}

// NewService はServiceを生成する。baseURLは確認リンクの生成に使用する。
func NewService(store CredentialStore, issuer TokenIssuer, mailer mail.Sender, collector metrics.MetricsCollector, baseURL string) *Service {
	return &Service{
		store:   store,
		issuer:  issuer,
		mailer:  mailer,
		metrics: collector,
		baseURL: baseURL,
	}
}

// Register はユーザーを登録し、アクセストークンを返す。
// メールアドレス、ユーザー名の順に重複を確認し、重複時は失敗レスポンスを返す。
// 確認メールの送信結果は登録の成否に影響しない。
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*model.ServiceResponse, error) {
	existing, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("メールアドレスの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return s.registrationFailed(fmt.Sprintf(msgEmailTaken, req.Email)), nil
	}

	existing, err = s.store.FindByName(ctx, req.UserName)
	if err != nil {
		return nil, fmt.Errorf("ユーザー名の確認に失敗しました: %w", err)
	}
	if existing != nil {
		return s.registrationFailed(fmt.Sprintf(msgUserNameTaken, req.UserName)), nil
	}

	user := &model.User{
		UserName: req.UserName,
		Email:    req.Email,
		Image:    req.Image,
	}
	result, err := s.store.Create(ctx, user, req.Password)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	if !result.Succeeded() {
		return s.registrationFailed(result.FirstError()), nil
	}

	exists, err := s.store.RoleExists(ctx, defaultRole)
	if err != nil {
		return nil, fmt.Errorf("ロールの確認に失敗しました: %w", err)
	}
	if exists {
		result, err = s.store.AddToRole(ctx, user, defaultRole)
		if err != nil {
			return nil, fmt.Errorf("ロールの付与に失敗しました: %w", err)
		}
		if !result.Succeeded() {
			return s.registrationFailed(result.FirstError()), nil
		}
	}

	s.SendConfirmEmailToken(ctx, user.ID)

	token, err := s.issueToken(ctx, user)
	if err != nil {
		return nil, err
	}

	slog.Info("ユーザーを登録しました",
		slog.String("user_id", user.ID),
		slog.String("user_name", user.UserName),
	)
	s.metrics.RecordRegistration(metrics.ResultSuccess)
	return model.Success(msgRegistered, token), nil
}

func (s *Service) registrationFailed(message string) *model.ServiceResponse {
	s.metrics.RecordRegistration(metrics.ResultFailure)
	return model.Failure(message)
}

// Login はユーザー名とパスワードを検証し、アクセストークンを返す。
func (s *Service) Login(ctx context.Context, req LoginRequest) (*model.ServiceResponse, error) {
	user, err := s.store.FindByName(ctx, req.UserName)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		slog.Info("ログインに失敗しました",
			slog.String("user_name", req.UserName),
			slog.String("reason", "user_not_found"),
		)
		s.metrics.RecordLogin(metrics.ResultFailure)
		return model.Failure(fmt.Sprintf(msgUserNotFound, req.UserName)), nil
	}

	if !s.store.CheckPassword(user, req.Password) {
		slog.Info("ログインに失敗しました",
			slog.String("user_id", user.ID),
			slog.String("reason", "wrong_password"),
		)
		s.metrics.RecordLogin(metrics.ResultFailure)
		return model.Failure(msgWrongPassword), nil
	}

	token, err := s.issueToken(ctx, user)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLogin(metrics.ResultSuccess)
	return model.Success(msgLoggedIn, token), nil
}

// issueToken はユーザーの現在のロールでトークンを発行する。
func (s *Service) issueToken(ctx context.Context, user *model.User) (string, error) {
	roles, err := s.store.GetRoles(ctx, user)
	if err != nil {
		return "", fmt.Errorf("ロールの取得に失敗しました: %w", err)
	}
	token, err := s.issuer.Issue(auth.SubjectFromUser(user), roles)
	if err != nil {
		return "", fmt.Errorf("トークンの発行に失敗しました: %w", err)
	}
	return token, nil
}

// ConfirmEmail は確認リンクのトークンでメールアドレスを確認済みにする。
// ユーザーが存在しない場合、トークンが不正な場合はいずれもfalseを返す。
func (s *Service) ConfirmEmail(ctx context.Context, id, encodedToken string) bool {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		slog.Error("メール確認のユーザー取得に失敗しました",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		return false
	}
	if user == nil {
		return false
	}

	raw, err := base64.StdEncoding.DecodeString(encodedToken)
	if err != nil {
		return false
	}

	result, err := s.store.ConfirmEmail(ctx, user, string(raw))
	if err != nil {
		slog.Error("メール確認に失敗しました",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		return false
	}
	return result.Succeeded()
}

// SendConfirmEmailToken は確認トークンを発行し、確認リンクをメールで送信する。
// 途中のいずれの失敗もログに記録してOK=falseを返す。
func (s *Service) SendConfirmEmailToken(ctx context.Context, userID string) DeliveryResult {
	result := s.sendConfirmEmailToken(ctx, userID)
	if result.OK {
		s.metrics.RecordConfirmMail(metrics.ResultSuccess)
	} else {
		s.metrics.RecordConfirmMail(metrics.ResultFailure)
	}
	return result
}

func (s *Service) sendConfirmEmailToken(ctx context.Context, userID string) DeliveryResult {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		slog.Error("確認メール送信のユーザー取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return DeliveryResult{}
	}
	if user == nil {
		return DeliveryResult{}
	}

	token, err := s.store.GenerateEmailConfirmationToken(ctx, user)
	if err != nil {
		slog.Error("確認トークンの発行に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return DeliveryResult{}
	}

	link := s.ConfirmLink(user.ID, token)
	body := fmt.Sprintf(msgConfirmMailBody, html.EscapeString(link))
	if err := s.mailer.SendMail(ctx, user.Email, confirmMailSubject, body, true); err != nil {
		slog.Warn("確認メールの送信に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return DeliveryResult{}
	}
	return DeliveryResult{OK: true}
}

// ConfirmLink は確認用URLを生成する。トークンはbase64でエンコードして埋め込む。
func (s *Service) ConfirmLink(userID, token string) string {
	q := url.Values{}
	q.Set("id", userID)
	q.Set("t", base64.StdEncoding.EncodeToString([]byte(token)))
	return s.baseURL + "/api/account/confirmEmail?" + q.Encode()
}
