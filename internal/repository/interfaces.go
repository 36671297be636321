// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/carmarket/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
// 同時登録の競合はDB制約で決着させ、呼び出し側でソフトエラーに変換する。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUserName はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUserName(ctx context.Context, userName string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。一意制約違反の場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// SetEmailConfirmed はメールアドレス確認済みフラグを立てる。
	SetEmailConfirmed(ctx context.Context, userID string) error
}

// RoleRepository はロールとロール所属の永続化インターフェース。
type RoleRepository interface {
	// FindByName はロール名でロールを検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Role, error)

	// AddUser はユーザーをロールに所属させる。既に所属している場合は何もしない。
	AddUser(ctx context.Context, userID, roleID string) error

	// ListNamesByUserID はユーザーが所属するロール名を名前順で返す。
	ListNamesByUserID(ctx context.Context, userID string) ([]string, error)
}

// UserSortKey はユーザー一覧の並び順。
type UserSortKey string

// 並び順の選択肢。
const (
	SortByUserName UserSortKey = "username"
	SortByEmail    UserSortKey = "email"
	SortByRole     UserSortKey = "role"
)

// UserQueryRepository はユーザー一覧取得のインターフェース。
// 結果はロール名付きで、並び順はソートキーの後にIDで安定させる。
type UserQueryRepository interface {
	// ListAll は全ユーザーを返す。
	ListAll(ctx context.Context) ([]model.User, error)

	// List はソートキー順にoffsetからlimit件を返す。
	List(ctx context.Context, sortBy UserSortKey, offset, limit int) ([]model.User, error)

	// ListByRole は指定ロールに所属するユーザーをoffsetからlimit件返す。ロール名は大文字小文字を区別する。
	ListByRole(ctx context.Context, role string, offset, limit int) ([]model.User, error)
}

// ManufacturerRepository はメーカーの永続化インターフェース。
type ManufacturerRepository interface {
	// FindByID は指定IDのメーカーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Manufacturer, error)

	// FindByName はメーカー名で検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Manufacturer, error)

	// Create はメーカーを作成する。名前が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, m *model.Manufacturer) error

	// Update はメーカーを更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, m *model.Manufacturer) (bool, error)

	// Delete はメーカーを削除する。対象が存在しない場合はfalseを返す。
	// 紐づく車両はmanufacturer_idがNULLになる。
	Delete(ctx context.Context, id string) (bool, error)

	// List は全メーカーを名前順で返す。
	List(ctx context.Context) ([]model.Manufacturer, error)
}

// CarRepository は車両の永続化インターフェース。
type CarRepository interface {
	// Create は車両と画像参照を同一トランザクションで作成する。
	Create(ctx context.Context, car *model.Car) error

	// ListWithRelations はメーカーと画像を含む全車両を返す。
	ListWithRelations(ctx context.Context) ([]model.Car, error)
}

// EmailTokenRepository はメール確認トークンの永続化インターフェース。
// トークンはハッシュ化した値のみ保存する。
type EmailTokenRepository interface {
	// Upsert はユーザーの確認トークンを保存する。既存のトークンは置き換える。
	Upsert(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error

	// Consume はトークンが一致し期限内であれば削除してtrueを返す。
	Consume(ctx context.Context, userID, tokenHash string, now time.Time) (bool, error)
}
