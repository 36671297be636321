// Package model はドメインモデルを定義する。
package model

import "time"

// ロール名。マイグレーションで投入される固定の参照データ。
const (
	RoleAdmin              = "admin"
	RoleUser               = "user"
	RoleCarManager         = "car manager"
	RoleManufactureManager = "manufacture manager"
)

// User はサービス利用ユーザーを表す。
// 物理削除はしない。PasswordHashはidentityパッケージのみが扱う。
type User struct {
	ID             string
	UserName       string
	Email          string
	PasswordHash   string
	Image          string
	EmailConfirmed bool
	Roles          []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Role はロールを表す。
type Role struct {
	ID   string
	Name string
}
