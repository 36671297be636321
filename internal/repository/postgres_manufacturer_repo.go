package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/carmarket/internal/model"
)

// PostgresManufacturerRepo はPostgreSQLを使用したメーカーリポジトリ。
type PostgresManufacturerRepo struct {
	db *sql.DB
}

// NewPostgresManufacturerRepo はPostgresManufacturerRepoを生成する。
func NewPostgresManufacturerRepo(db *sql.DB) *PostgresManufacturerRepo {
	return &PostgresManufacturerRepo{db: db}
}

const manufacturerColumns = `id, name, description, image, created_at, updated_at`

// FindByID は指定IDのメーカーを取得する。見つからない場合はnilを返す。
func (r *PostgresManufacturerRepo) FindByID(ctx context.Context, id string) (*model.Manufacturer, error) {
	return r.findOne(ctx, `SELECT `+manufacturerColumns+` FROM manufacturers WHERE id = $1`, id)
}

// FindByName はメーカー名で検索する。見つからない場合はnilを返す。
func (r *PostgresManufacturerRepo) FindByName(ctx context.Context, name string) (*model.Manufacturer, error) {
	return r.findOne(ctx, `SELECT `+manufacturerColumns+` FROM manufacturers WHERE name = $1`, name)
}

func (r *PostgresManufacturerRepo) findOne(ctx context.Context, query, arg string) (*model.Manufacturer, error) {
	m := &model.Manufacturer{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&m.ID, &m.Name, &m.Description, &m.Image, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find manufacturer: %w", err)
	}
	return m, nil
}

// Create はメーカーを作成する。名前が重複する場合はErrDuplicateを返す。
func (r *PostgresManufacturerRepo) Create(ctx context.Context, m *model.Manufacturer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO manufacturers (id, name, description, image, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.Name, m.Description, m.Image, m.CreatedAt, m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert manufacturer: %w", err)
	}
	return nil
}

// Update はメーカーを更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresManufacturerRepo) Update(ctx context.Context, m *model.Manufacturer) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE manufacturers SET name = $2, description = $3, image = $4, updated_at = $5
		 WHERE id = $1`,
		m.ID, m.Name, m.Description, m.Image, m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return false, ErrDuplicate
	}
	if err != nil {
		return false, fmt.Errorf("failed to update manufacturer: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete はメーカーを削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresManufacturerRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM manufacturers WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete manufacturer: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// List は全メーカーを名前順で返す。
func (r *PostgresManufacturerRepo) List(ctx context.Context) ([]model.Manufacturer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+manufacturerColumns+` FROM manufacturers ORDER BY name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list manufacturers: %w", err)
	}
	defer rows.Close()

	var list []model.Manufacturer
	for rows.Next() {
		var m model.Manufacturer
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Image, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan manufacturer: %w", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate manufacturers: %w", err)
	}
	return list, nil
}

// compile-time interface check
var _ ManufacturerRepository = (*PostgresManufacturerRepo)(nil)
