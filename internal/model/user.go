// Package model はドメインモデルを定義する。
package model

import "time"

// プロバイダー名の定数。トークンスロットの識別に使用する。
const (
	ProviderSlack   = "slack"
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"
	ProviderJira    = "jira"
)

// User はサービス利用ユーザーを表す。
// 各プロバイダーのトークンスロットは連携完了時またはリフレッシュ時に
// 丸ごと上書きされる。履歴は保持しない。
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string

	// プロバイダートークンスロット。未連携の場合は空文字列。
	SlackToken        string
	GmailToken        string
	GmailRefreshToken string
	OutlookToken      string
	JiraToken         string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LinkedProviders は連携済みプロバイダーの一覧をmapで返す。
// GET /api/me のレスポンスに使用する。
func (u *User) LinkedProviders() map[string]bool {
	return map[string]bool{
		ProviderSlack:   u.SlackToken != "",
		ProviderGmail:   u.GmailToken != "",
		ProviderOutlook: u.OutlookToken != "",
		ProviderJira:    u.JiraToken != "",
	}
}
