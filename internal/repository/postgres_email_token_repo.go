package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresEmailTokenRepo はPostgreSQLを使用したメール確認トークンリポジトリ。
type PostgresEmailTokenRepo struct {
	db *sql.DB
}

// NewPostgresEmailTokenRepo はPostgresEmailTokenRepoを生成する。
func NewPostgresEmailTokenRepo(db *sql.DB) *PostgresEmailTokenRepo {
	return &PostgresEmailTokenRepo{db: db}
}

// Upsert はユーザーの確認トークンを保存する。既存のトークンは置き換える。
func (r *PostgresEmailTokenRepo) Upsert(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_confirmation_tokens (user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, created_at = now()`,
		userID, tokenHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert email confirmation token: %w", err)
	}
	return nil
}

// Consume はトークンが一致し期限内であれば削除してtrueを返す。
func (r *PostgresEmailTokenRepo) Consume(ctx context.Context, userID, tokenHash string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM email_confirmation_tokens
		 WHERE user_id = $1 AND token_hash = $2 AND expires_at > $3`,
		userID, tokenHash, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume email confirmation token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// compile-time interface check
var _ EmailTokenRepository = (*PostgresEmailTokenRepo)(nil)
