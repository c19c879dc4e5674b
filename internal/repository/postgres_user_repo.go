package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/workhub/internal/model"
)

// pqUniqueViolation はPostgreSQLのunique_violationエラーコード。
const pqUniqueViolation = "23505"

// userColumns はSELECTで取得するカラムの並び。scanUserと対応を保つこと。
const userColumns = `id, name, email, password_hash,
	COALESCE(slack_token, ''), COALESCE(gmail_token, ''), COALESCE(gmail_refresh_token, ''),
	COALESCE(outlook_token, ''), COALESCE(jira_token, ''),
	created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Create はユーザーを作成し、採番されたIDをuser.IDに書き戻す。
// email重複の場合はErrDuplicateEmailを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (name, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		user.Name, user.Email, user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// UpdateProviderToken は指定トークンスロットを上書きする。
// slotは定義済みTokenSlot定数のみ許可し、任意文字列のSQL埋め込みを防ぐ。
func (r *PostgresUserRepo) UpdateProviderToken(ctx context.Context, userID int64, slot TokenSlot, value string) error {
	if !isValidSlot(slot) {
		return fmt.Errorf("unknown token slot: %q", slot)
	}

	result, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s = $1, updated_at = now() WHERE id = $2`, slot),
		value, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", slot, err)
	}

	return requireOneRow(result, userID)
}

// UpdateGmailTokens はGmailのアクセストークンとリフレッシュトークンを1文で上書きする。
// refreshが空文字列の場合は既存のリフレッシュトークンを維持する。
func (r *PostgresUserRepo) UpdateGmailTokens(ctx context.Context, userID int64, access, refresh string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET gmail_token = $1,
		     gmail_refresh_token = CASE WHEN $2 = '' THEN gmail_refresh_token ELSE $2 END,
		     updated_at = now()
		 WHERE id = $3`,
		access, refresh, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update gmail tokens: %w", err)
	}

	return requireOneRow(result, userID)
}

// scanUser は1行分のユーザーをスキャンする。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash,
		&user.SlackToken, &user.GmailToken, &user.GmailRefreshToken,
		&user.OutlookToken, &user.JiraToken,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// isValidSlot はTokenSlotが定義済みカラムかを検証する。
func isValidSlot(slot TokenSlot) bool {
	switch slot {
	case SlotSlackToken, SlotGmailToken, SlotGmailRefreshToken, SlotOutlookToken, SlotJiraToken:
		return true
	}
	return false
}

// requireOneRow は更新対象が存在したことを検証する。
func requireOneRow(result sql.Result, userID int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %d", userID)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
