package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/carmarket/internal/model"
	"github.com/hitoshi/carmarket/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// 業務エラーメッセージ
const (
	msgUserNameRequired = "ユーザー名を入力してください。"
	msgEmailInvalid     = "メールアドレスの形式が正しくありません。"
	msgPasswordTooShort = "パスワードは6文字以上で入力してください。"
	msgDuplicateUser    = "ユーザー名またはメールアドレスは既に使用されています。"
	msgRoleNotFound     = "ロール '%s' が存在しません。"
	msgInvalidToken     = "確認トークンが無効です。"
)

// confirmationTokenSize は確認トークンの乱数バイト数。
const confirmationTokenSize = 32

// Manager は資格情報ストアの操作を提供する。
type Manager struct {
	users    repository.UserRepository
	roles    repository.RoleRepository
	tokens   TokenStore
	tokenTTL time.Duration
	cost     int
	now      func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(users repository.UserRepository, roles repository.RoleRepository, tokens TokenStore, tokenTTL time.Duration) *Manager {
	return &Manager{
		users:    users,
		roles:    roles,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// FindByName はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
func (m *Manager) FindByName(ctx context.Context, userName string) (*model.User, error) {
	return m.users.FindByUserName(ctx, userName)
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (m *Manager) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return m.users.FindByEmail(ctx, email)
}

// FindByID はIDでユーザーを検索する。IDがUUID形式でない場合も見つからない扱いでnilを返す。
func (m *Manager) FindByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return m.users.FindByID(ctx, id)
}

// Create はパスワードをハッシュ化してユーザーを作成する。
// 入力検証や一意制約の違反はResultで返す。
func (m *Manager) Create(ctx context.Context, user *model.User, password string) (*Result, error) {
	var problems []string
	if strings.TrimSpace(user.UserName) == "" {
		problems = append(problems, msgUserNameRequired)
	}
	if !strings.Contains(user.Email, "@") {
		problems = append(problems, msgEmailInvalid)
	}
	if len([]rune(password)) < MinPasswordLength {
		problems = append(problems, msgPasswordTooShort)
	}
	if len(problems) > 0 {
		return failed(problems...), nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := m.now()
	user.PasswordHash = string(hash)
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := m.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return failed(msgDuplicateUser), nil
		}
		return nil, err
	}
	return success(), nil
}

// CheckPassword はパスワードがユーザーのハッシュと一致するかを返す。
func (m *Manager) CheckPassword(user *model.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// GetRoles はユーザーが所属するロール名を返す。
func (m *Manager) GetRoles(ctx context.Context, user *model.User) ([]string, error) {
	return m.roles.ListNamesByUserID(ctx, user.ID)
}

// RoleExists はロールが存在するかを返す。
func (m *Manager) RoleExists(ctx context.Context, name string) (bool, error) {
	role, err := m.roles.FindByName(ctx, name)
	if err != nil {
		return false, err
	}
	return role != nil, nil
}

// AddToRole はユーザーをロールに所属させる。ロールが存在しない場合はResultで返す。
func (m *Manager) AddToRole(ctx context.Context, user *model.User, roleName string) (*Result, error) {
	role, err := m.roles.FindByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return failed(fmt.Sprintf(msgRoleNotFound, roleName)), nil
	}
	if err := m.roles.AddUser(ctx, user.ID, role.ID); err != nil {
		return nil, err
	}
	return success(), nil
}

// GenerateEmailConfirmationToken は確認トークンを発行する。
// ストアにはハッシュのみを保存し、平文は呼び出し側に返す。以前のトークンは無効になる。
func (m *Manager) GenerateEmailConfirmationToken(ctx context.Context, user *model.User) (string, error) {
	buf := make([]byte, confirmationTokenSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate confirmation token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := m.tokens.Save(ctx, user.ID, hashToken(token), m.tokenTTL); err != nil {
		return "", err
	}
	return token, nil
}

// ConfirmEmail はトークンを検証し、一致すればメールアドレスを確認済みにする。
// トークンは一度だけ使用できる。
func (m *Manager) ConfirmEmail(ctx context.Context, user *model.User, token string) (*Result, error) {
	ok, err := m.tokens.Consume(ctx, user.ID, hashToken(token))
	if err != nil {
		return nil, err
	}
	if !ok {
		return failed(msgInvalidToken), nil
	}
	if err := m.users.SetEmailConfirmed(ctx, user.ID); err != nil {
		return nil, err
	}
	user.EmailConfirmed = true
	return success(), nil
}
