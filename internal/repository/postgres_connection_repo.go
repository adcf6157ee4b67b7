package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/vitalsync/internal/model"
)

// PostgresConnectionRepo はPostgreSQLを使用した接続リポジトリ。
type PostgresConnectionRepo struct {
	db *sql.DB
}

// NewPostgresConnectionRepo はPostgresConnectionRepoを生成する。
func NewPostgresConnectionRepo(db *sql.DB) *PostgresConnectionRepo {
	return &PostgresConnectionRepo{db: db}
}

// Upsert は接続を冪等に作成または置換する。
// （user_id, provider）の衝突時はトークンバンドル全体を置き換える。
func (r *PostgresConnectionRepo) Upsert(ctx context.Context, conn *model.Connection) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wearable_connections
		     (user_id, provider, access_token, refresh_token, token_expires_at,
		      scopes, provider_user_id, status, last_sync_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		 ON CONFLICT (user_id, provider) DO UPDATE SET
		     access_token = EXCLUDED.access_token,
		     refresh_token = EXCLUDED.refresh_token,
		     token_expires_at = EXCLUDED.token_expires_at,
		     scopes = EXCLUDED.scopes,
		     provider_user_id = EXCLUDED.provider_user_id,
		     status = EXCLUDED.status,
		     updated_at = now()`,
		conn.UserID, conn.Provider,
		conn.Tokens.AccessToken, nullString(conn.Tokens.RefreshToken),
		nullTime(conn.Tokens.ExpiresAt),
		pq.Array(conn.Tokens.Scopes), nullString(conn.Tokens.ProviderUserID),
		conn.Status, nullTime(conn.LastSyncAt),
	)
	if err != nil {
		return fmt.Errorf("接続のUPSERTに失敗しました: %w", err)
	}
	return nil
}

// Find は指定（ユーザー, プロバイダー）の接続を取得する。見つからない場合はnilを返す。
func (r *PostgresConnectionRepo) Find(ctx context.Context, userID string, provider model.Provider) (*model.Connection, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, provider, access_token, refresh_token, token_expires_at,
		        scopes, provider_user_id, status, last_sync_at, created_at, updated_at
		 FROM wearable_connections
		 WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	)

	conn, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("接続の取得に失敗しました: %w", err)
	}
	return conn, nil
}

// ResolveUserID はプロバイダー側ユーザーIDから内部ユーザーIDを逆引きする。
// 見つからない場合は空文字列を返す。
func (r *PostgresConnectionRepo) ResolveUserID(ctx context.Context, provider model.Provider, providerUserID string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM wearable_connections
		 WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	).Scan(&userID)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ユーザーIDの逆引きに失敗しました: %w", err)
	}
	return userID, nil
}

// ListActive はアクティブな接続一覧を返す。providerがnilでない場合は絞り込む。
func (r *PostgresConnectionRepo) ListActive(ctx context.Context, provider *model.Provider) ([]*model.Connection, error) {
	query := `SELECT user_id, provider, access_token, refresh_token, token_expires_at,
	                 scopes, provider_user_id, status, last_sync_at, created_at, updated_at
	          FROM wearable_connections
	          WHERE status = 'active'`
	args := []any{}
	if provider != nil {
		query += ` AND provider = $1`
		args = append(args, *provider)
	}
	query += ` ORDER BY user_id, provider`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("アクティブ接続一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var conns []*model.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("接続の読み取りに失敗しました: %w", err)
		}
		conns = append(conns, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("接続一覧の走査に失敗しました: %w", err)
	}

	return conns, nil
}

// TouchSync はlast_sync_atのみを更新する。
func (r *PostgresConnectionRepo) TouchSync(ctx context.Context, userID string, provider model.Provider, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wearable_connections SET last_sync_at = $3, updated_at = now()
		 WHERE user_id = $1 AND provider = $2`,
		userID, provider, at,
	)
	if err != nil {
		return fmt.Errorf("last_sync_atの更新に失敗しました: %w", err)
	}
	return nil
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanConnection は1行を読み取りConnectionに変換する。
func scanConnection(row rowScanner) (*model.Connection, error) {
	conn := &model.Connection{}
	var refreshToken, providerUserID sql.NullString
	var expiresAt, lastSyncAt sql.NullTime
	var scopes pq.StringArray

	if err := row.Scan(
		&conn.UserID, &conn.Provider,
		&conn.Tokens.AccessToken, &refreshToken, &expiresAt,
		&scopes, &providerUserID, &conn.Status, &lastSyncAt,
		&conn.CreatedAt, &conn.UpdatedAt,
	); err != nil {
		return nil, err
	}

	conn.Tokens.RefreshToken = nullStringValue(refreshToken)
	conn.Tokens.ProviderUserID = nullStringValue(providerUserID)
	conn.Tokens.Scopes = scopes
	conn.Tokens.ExpiresAt = nullTimeValue(expiresAt)
	conn.LastSyncAt = nullTimeValue(lastSyncAt)

	return conn, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullTimeValue はsql.NullTimeから*time.Timeを取得する。
func nullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

// compile-time interface check
var _ ConnectionRepository = (*PostgresConnectionRepo)(nil)
