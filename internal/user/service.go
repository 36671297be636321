// Package user はユーザー一覧の参照フローを提供する。
package user

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/hitoshi/carmarket/internal/model"
	"github.com/hitoshi/carmarket/internal/repository"
)

// ページングの既定値と上限
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// UserDTO はユーザー一覧の1件。
type UserDTO struct {
	ID             string   `json:"id"`
	UserName       string   `json:"userName"`
	Email          string   `json:"email"`
	Image          string   `json:"image"`
	EmailConfirmed bool     `json:"emailConfirmed"`
	Roles          []string `json:"roles"`
}

// Service はユーザー一覧の参照サービス。
type Service struct {
	users repository.UserQueryRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users repository.UserQueryRepository) *Service {
	return &Service{users: users}
}

// ListAll は全ユーザーをロール付きで返す。ページングしないため管理用途向け。
func (s *Service) ListAll(ctx context.Context) ([]UserDTO, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return toDTOs(users), nil
}

// ListPaged はユーザー名順でページングしたユーザーを返す。
func (s *Service) ListPaged(ctx context.Context, page, pageSize int) ([]UserDTO, error) {
	return s.ListSorted(ctx, string(repository.SortByUserName), page, pageSize)
}

// ListByRole は指定したロールに所属するユーザーを返す。ロール名は大文字小文字を区別する。
func (s *Service) ListByRole(ctx context.Context, role string, page, pageSize int) ([]UserDTO, error) {
	offset, limit := Clamp(page, pageSize)
	users, err := s.users.ListByRole(ctx, role, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("ロール別ユーザー一覧の取得に失敗しました: %w", err)
	}
	return toDTOs(users), nil
}

// ListSorted はsortByで並べ替えたユーザーを返す。
// sortByはrole、email、usernameのいずれか（大文字小文字を区別しない）。それ以外はusernameとして扱う。
func (s *Service) ListSorted(ctx context.Context, sortBy string, page, pageSize int) ([]UserDTO, error) {
	offset, limit := Clamp(page, pageSize)
	users, err := s.users.List(ctx, ParseSortKey(sortBy), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return toDTOs(users), nil
}

// ParseSortKey は並べ替えキーを解釈する。
func ParseSortKey(sortBy string) repository.UserSortKey {
	switch key := repository.UserSortKey(strings.ToLower(strings.TrimSpace(sortBy))); key {
	case repository.SortByRole, repository.SortByEmail, repository.SortByUserName:
		return key
	default:
		return repository.SortByUserName
	}
}

// Clamp はページ番号とページサイズを補正し、offsetとlimitに変換する。
// page < 1 は1、pageSize < 1 は既定値、上限を超えるpageSizeは上限に丸める。
// offsetがintに収まらないpageは表現可能な最終ページに丸める。
func Clamp(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize < 1:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	if maxPage := math.MaxInt / pageSize; page > maxPage {
		page = maxPage
	}
	return (page - 1) * pageSize, pageSize
}

func toDTOs(users []model.User) []UserDTO {
	dtos := make([]UserDTO, 0, len(users))
	for _, u := range users {
		roles := u.Roles
		if roles == nil {
			roles = []string{}
		}
		dtos = append(dtos, UserDTO{
			ID:             u.ID,
			UserName:       u.UserName,
			Email:          u.Email,
			Image:          u.Image,
			EmailConfirmed: u.EmailConfirmed,
			Roles:          roles,
		})
	}
	return dtos
}
