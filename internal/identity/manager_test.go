package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/carmarket/internal/model"
	"github.com/hitoshi/carmarket/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn          func(ctx context.Context, id string) (*model.User, error)
	findByUserNameFn    func(ctx context.Context, userName string) (*model.User, error)
	createFn            func(ctx context.Context, user *model.User) error
	setEmailConfirmedFn func(ctx context.Context, userID string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByUserName(ctx context.Context, userName string) (*model.User, error) {
	if m.findByUserNameFn != nil {
		return m.findByUserNameFn(ctx, userName)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) SetEmailConfirmed(ctx context.Context, userID string) error {
	if m.setEmailConfirmedFn != nil {
		return m.setEmailConfirmedFn(ctx, userID)
	}
	return nil
}

type mockRoleRepo struct {
	roles map[string]string // name -> id
	added []string
}

func (m *mockRoleRepo) FindByName(ctx context.Context, name string) (*model.Role, error) {
	if id, ok := m.roles[name]; ok {
		return &model.Role{ID: id, Name: name}, nil
	}
	return nil, nil
}
func (m *mockRoleRepo) AddUser(ctx context.Context, userID, roleID string) error {
	m.added = append(m.added, userID+":"+roleID)
	return nil
}
func (m *mockRoleRepo) ListNamesByUserID(ctx context.Context, userID string) ([]string, error) {
	return []string{model.RoleUser}, nil
}

// memoryTokenStore は期限を考慮しないメモリ上のTokenStore。
type memoryTokenStore struct {
	hashes map[string]string
	ttl    time.Duration
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{hashes: make(map[string]string)}
}

func (s *memoryTokenStore) Save(ctx context.Context, userID, tokenHash string, ttl time.Duration) error {
	s.hashes[userID] = tokenHash
	s.ttl = ttl
	return nil
}
func (s *memoryTokenStore) Consume(ctx context.Context, userID, tokenHash string) (bool, error) {
	if s.hashes[userID] != tokenHash {
		return false, nil
	}
	delete(s.hashes, userID)
	return true, nil
}

func newTestManager(users repository.UserRepository, roles repository.RoleRepository, tokens TokenStore) *Manager {
	m := NewManager(users, roles, tokens, time.Hour)
	m.cost = bcrypt.MinCost
	return m
}

// --- テスト ---

func TestManager_Create_HashesPassword(t *testing.T) {
	var stored *model.User
	users := &mockUserRepo{createFn: func(ctx context.Context, user *model.User) error {
		stored = user
		return nil
	}}
	m := newTestManager(users, &mockRoleRepo{}, newMemoryTokenStore())

	user := &model.User{UserName: "alice", Email: "alice@example.com"}
	result, err := m.Create(context.Background(), user, "secret1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("Create failed: %v", result.Errors)
	}
	if stored == nil || stored.ID == "" {
		t.Fatal("expected user to be stored with a generated ID")
	}
	if stored.PasswordHash == "secret1" || stored.PasswordHash == "" {
		t.Errorf("PasswordHash = %q, want bcrypt hash", stored.PasswordHash)
	}
	if !m.CheckPassword(stored, "secret1") {
		t.Error("CheckPassword should accept the original password")
	}
	if m.CheckPassword(stored, "wrong-password") {
		t.Error("CheckPassword should reject a different password")
	}
}

func TestManager_Create_PolicyViolationsInOrder(t *testing.T) {
	called := false
	users := &mockUserRepo{createFn: func(ctx context.Context, user *model.User) error {
		called = true
		return nil
	}}
	m := newTestManager(users, &mockRoleRepo{}, newMemoryTokenStore())

	result, err := m.Create(context.Background(), &model.User{UserName: " ", Email: "invalid"}, "12345")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if result.Succeeded() {
		t.Fatal("expected policy failure")
	}
	want := []string{msgUserNameRequired, msgEmailInvalid, msgPasswordTooShort}
	if len(result.Errors) != len(want) {
		t.Fatalf("Errors = %v, want %v", result.Errors, want)
	}
	for i := range want {
		if result.Errors[i] != want[i] {
			t.Errorf("Errors[%d] = %q, want %q", i, result.Errors[i], want[i])
		}
	}
	if result.FirstError() != msgUserNameRequired {
		t.Errorf("FirstError = %q, want %q", result.FirstError(), msgUserNameRequired)
	}
	if called {
		t.Error("repository should not be called on policy violation")
	}
}

func TestManager_Create_DuplicateIsSoftFailure(t *testing.T) {
	users := &mockUserRepo{createFn: func(ctx context.Context, user *model.User) error {
		return repository.ErrDuplicate
	}}
	m := newTestManager(users, &mockRoleRepo{}, newMemoryTokenStore())

	result, err := m.Create(context.Background(), &model.User{UserName: "a", Email: "a@b.c"}, "secret1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if result.FirstError() != msgDuplicateUser {
		t.Errorf("FirstError = %q, want %q", result.FirstError(), msgDuplicateUser)
	}
}

func TestManager_Create_InfrastructureErrorPropagates(t *testing.T) {
	dbErr := errors.New("connection refused")
	users := &mockUserRepo{createFn: func(ctx context.Context, user *model.User) error {
		return dbErr
	}}
	m := newTestManager(users, &mockRoleRepo{}, newMemoryTokenStore())

	_, err := m.Create(context.Background(), &model.User{UserName: "a", Email: "a@b.c"}, "secret1")
	if !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want %v", err, dbErr)
	}
}

func TestManager_FindByID_MalformedIDIsNotFound(t *testing.T) {
	called := false
	users := &mockUserRepo{findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
		called = true
		return nil, nil
	}}
	m := newTestManager(users, &mockRoleRepo{}, newMemoryTokenStore())

	user, err := m.FindByID(context.Background(), "not-a-uuid")
	if err != nil || user != nil {
		t.Errorf("FindByID = %v, %v, want nil, nil", user, err)
	}
	if called {
		t.Error("repository should not be queried for a malformed id")
	}
}

func TestManager_AddToRole(t *testing.T) {
	roles := &mockRoleRepo{roles: map[string]string{model.RoleUser: "role-1"}}
	m := newTestManager(&mockUserRepo{}, roles, newMemoryTokenStore())
	user := &model.User{ID: "user-1"}

	result, err := m.AddToRole(context.Background(), user, model.RoleUser)
	if err != nil || !result.Succeeded() {
		t.Fatalf("AddToRole = %v, %v", result, err)
	}
	if len(roles.added) != 1 || roles.added[0] != "user-1:role-1" {
		t.Errorf("added = %v", roles.added)
	}

	result, err = m.AddToRole(context.Background(), user, "missing")
	if err != nil {
		t.Fatalf("AddToRole returned error: %v", err)
	}
	if result.Succeeded() {
		t.Error("expected failure for unknown role")
	}

	exists, _ := m.RoleExists(context.Background(), model.RoleUser)
	if !exists {
		t.Error("RoleExists(user) = false, want true")
	}
	exists, _ = m.RoleExists(context.Background(), "missing")
	if exists {
		t.Error("RoleExists(missing) = true, want false")
	}
}

func TestManager_EmailConfirmationRoundTrip(t *testing.T) {
	confirmed := ""
	users := &mockUserRepo{setEmailConfirmedFn: func(ctx context.Context, userID string) error {
		confirmed = userID
		return nil
	}}
	tokens := newMemoryTokenStore()
	m := newTestManager(users, &mockRoleRepo{}, tokens)
	user := &model.User{ID: "user-1"}
	ctx := context.Background()

	token, err := m.GenerateEmailConfirmationToken(ctx, user)
	if err != nil {
		t.Fatalf("GenerateEmailConfirmationToken: %v", err)
	}
	if len(token) != confirmationTokenSize*2 {
		t.Errorf("token length = %d, want %d", len(token), confirmationTokenSize*2)
	}
	if tokens.hashes["user-1"] == token {
		t.Error("store should hold the hash, not the raw token")
	}
	if tokens.ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", tokens.ttl)
	}

	result, err := m.ConfirmEmail(ctx, user, token)
	if err != nil || !result.Succeeded() {
		t.Fatalf("ConfirmEmail = %v, %v", result, err)
	}
	if confirmed != "user-1" || !user.EmailConfirmed {
		t.Error("expected email to be marked confirmed")
	}

	// 同じトークンは再利用できない
	result, err = m.ConfirmEmail(ctx, user, token)
	if err != nil {
		t.Fatalf("ConfirmEmail returned error: %v", err)
	}
	if result.Succeeded() {
		t.Error("token should be single use")
	}
}

func TestManager_ConfirmEmail_WrongToken(t *testing.T) {
	m := newTestManager(&mockUserRepo{}, &mockRoleRepo{}, newMemoryTokenStore())
	user := &model.User{ID: "user-1"}

	if _, err := m.GenerateEmailConfirmationToken(context.Background(), user); err != nil {
		t.Fatalf("GenerateEmailConfirmationToken: %v", err)
	}
	result, err := m.ConfirmEmail(context.Background(), user, "forged")
	if err != nil {
		t.Fatalf("ConfirmEmail returned error: %v", err)
	}
	if result.FirstError() != msgInvalidToken {
		t.Errorf("FirstError = %q, want %q", result.FirstError(), msgInvalidToken)
	}
}

func TestManager_EnsureAdmin_ExistingUserOnlyGetsRole(t *testing.T) {
	createCalled := false
	users := &mockUserRepo{
		findByUserNameFn: func(ctx context.Context, userName string) (*model.User, error) {
			return &model.User{ID: "admin-1", UserName: userName}, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			createCalled = true
			return nil
		},
	}
	roles := &mockRoleRepo{roles: map[string]string{model.RoleAdmin: "role-admin"}}
	m := newTestManager(users, roles, newMemoryTokenStore())

	if err := m.EnsureAdmin(context.Background(), "admin", "admin@example.com", "secret1"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	if createCalled {
		t.Error("existing admin should not be recreated")
	}
	if len(roles.added) != 1 || roles.added[0] != "admin-1:role-admin" {
		t.Errorf("added = %v", roles.added)
	}
}

func TestManager_EnsureAdmin_CreatesConfirmedUser(t *testing.T) {
	var created *model.User
	users := &mockUserRepo{createFn: func(ctx context.Context, user *model.User) error {
		created = user
		return nil
	}}
	roles := &mockRoleRepo{roles: map[string]string{model.RoleAdmin: "role-admin"}}
	m := newTestManager(users, roles, newMemoryTokenStore())

	if err := m.EnsureAdmin(context.Background(), "admin", "admin@example.com", "secret1"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	if created == nil || !created.EmailConfirmed {
		t.Fatalf("created = %+v, want confirmed admin", created)
	}
	if len(roles.added) != 1 {
		t.Errorf("added = %v, want one role assignment", roles.added)
	}
}
