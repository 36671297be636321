package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/carmarket/internal/model"
)

// EnsureAdmin は管理者ユーザーを作成し、adminロールに所属させる。
// 既に同名のユーザーが存在する場合はロールの付与のみ行う。
func (m *Manager) EnsureAdmin(ctx context.Context, userName, email, password string) error {
	user, err := m.FindByName(ctx, userName)
	if err != nil {
		return err
	}

	if user == nil {
		user = &model.User{UserName: userName, Email: email, EmailConfirmed: true}
		result, err := m.Create(ctx, user, password)
		if err != nil {
			return err
		}
		if !result.Succeeded() {
			return fmt.Errorf("failed to create admin user: %s", result.FirstError())
		}
		slog.Info("管理者ユーザーを作成しました", slog.String("user_id", user.ID), slog.String("user_name", userName))
	}

	result, err := m.AddToRole(ctx, user, model.RoleAdmin)
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		return fmt.Errorf("failed to add admin role: %s", result.FirstError())
	}
	return nil
}
