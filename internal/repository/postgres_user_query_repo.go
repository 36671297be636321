package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hitoshi/carmarket/internal/model"
)

// PostgresUserQueryRepo はユーザー一覧取得用のリポジトリ。
// ロール名の集約結果をsqlxで構造体にスキャンする。
type PostgresUserQueryRepo struct {
	db *sqlx.DB
}

// NewPostgresUserQueryRepo はPostgresUserQueryRepoを生成する。
func NewPostgresUserQueryRepo(db *sql.DB) *PostgresUserQueryRepo {
	return &PostgresUserQueryRepo{db: sqlx.NewDb(db, "postgres")}
}

type userWithRolesRow struct {
	ID             string         `db:"id"`
	UserName       string         `db:"user_name"`
	Email          string         `db:"email"`
	Image          string         `db:"image"`
	EmailConfirmed bool           `db:"email_confirmed"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	Roles          pq.StringArray `db:"roles"`
}

const userWithRolesSelect = `
	SELECT u.id, u.user_name, u.email, u.image, u.email_confirmed, u.created_at, u.updated_at,
	       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}') AS roles
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
	LEFT JOIN roles r ON r.id = ur.role_id`

// orderClause はソートキーに対応するORDER BY句を返す。
// 未知のキーはユーザー名順として扱う。
func orderClause(sortBy UserSortKey) string {
	switch sortBy {
	case SortByEmail:
		return ` ORDER BY u.email, u.id`
	case SortByRole:
		return ` ORDER BY MIN(r.name) NULLS LAST, u.id`
	default:
		return ` ORDER BY u.user_name, u.id`
	}
}

// ListAll は全ユーザーをユーザー名順で返す。
func (r *PostgresUserQueryRepo) ListAll(ctx context.Context) ([]model.User, error) {
	query := userWithRolesSelect + ` GROUP BY u.id` + orderClause(SortByUserName)
	return r.selectUsers(ctx, query)
}

// List はソートキー順にoffsetからlimit件を返す。
func (r *PostgresUserQueryRepo) List(ctx context.Context, sortBy UserSortKey, offset, limit int) ([]model.User, error) {
	query := userWithRolesSelect + ` GROUP BY u.id` + orderClause(sortBy) + ` OFFSET $1 LIMIT $2`
	return r.selectUsers(ctx, query, offset, limit)
}

// ListByRole は指定ロールに所属するユーザーをoffsetからlimit件返す。
func (r *PostgresUserQueryRepo) ListByRole(ctx context.Context, role string, offset, limit int) ([]model.User, error) {
	query := userWithRolesSelect + `
	WHERE EXISTS (
		SELECT 1 FROM user_roles fur
		JOIN roles fr ON fr.id = fur.role_id
		WHERE fur.user_id = u.id AND fr.name = $1
	)
	GROUP BY u.id` + orderClause(SortByUserName) + ` OFFSET $2 LIMIT $3`
	return r.selectUsers(ctx, query, role, offset, limit)
}

func (r *PostgresUserQueryRepo) selectUsers(ctx context.Context, query string, args ...any) ([]model.User, error) {
	var rows []userWithRolesRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]model.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, model.User{
			ID:             row.ID,
			UserName:       row.UserName,
			Email:          row.Email,
			Image:          row.Image,
			EmailConfirmed: row.EmailConfirmed,
			Roles:          []string(row.Roles),
			CreatedAt:      row.CreatedAt,
			UpdatedAt:      row.UpdatedAt,
		})
	}
	return users, nil
}

// compile-time interface check
var _ UserQueryRepository = (*PostgresUserQueryRepo)(nil)
