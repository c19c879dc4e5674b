// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/workhub/internal/model"
)

// ErrDuplicateEmail はemail一意制約違反を表すセンチネルエラー。
// サービス層でmodel.APIErrorに変換する。
var ErrDuplicateEmail = errors.New("email already registered")

// TokenSlot はusersテーブルのプロバイダートークンカラムを表す。
// SQL文へ直接埋め込むため、定義済みの値以外は受け付けない。
type TokenSlot string

const (
	SlotSlackToken        TokenSlot = "slack_token"
	SlotGmailToken        TokenSlot = "gmail_token"
	SlotGmailRefreshToken TokenSlot = "gmail_refresh_token"
	SlotOutlookToken      TokenSlot = "outlook_token"
	SlotJiraToken         TokenSlot = "jira_token"
)

// UserRepository はユーザーデータの永続化インターフェース。
// すべての書き込みは単一行に対する即時コミットで、複数ユーザーに
// またがるトランザクションは存在しない。
type UserRepository interface {
	// Create はユーザーを作成し、採番されたIDをuser.IDに書き戻す。
	// email重複の場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// UpdateProviderToken は指定トークンスロットを上書きする。
	// 対象ユーザーが存在しない場合はエラーを返す。
	UpdateProviderToken(ctx context.Context, userID int64, slot TokenSlot, value string) error

	// UpdateGmailTokens はGmailのアクセストークンとリフレッシュトークンを
	// 1文で上書きする。refreshが空文字列の場合は既存のリフレッシュトークンを維持する
	// （Googleは再連携時にrefresh_tokenを返さないことがある）。
	UpdateGmailTokens(ctx context.Context, userID int64, access, refresh string) error
}
