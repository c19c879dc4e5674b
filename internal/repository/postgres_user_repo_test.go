package repository

import (
	"context"
	"testing"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// NewPostgresUserRepoが正しく初期化されることを検証
func TestNewPostgresUserRepo_Initializes(t *testing.T) {
	repo := NewPostgresUserRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// 定義済みトークンスロットのみが許可されることを検証
// （カラム名はSQL文に直接埋め込まれるため、許可リスト検証が防御線になる）
func TestIsValidSlot(t *testing.T) {
	tests := []struct {
		name string
		slot TokenSlot
		want bool
	}{
		{"slack", SlotSlackToken, true},
		{"gmail access", SlotGmailToken, true},
		{"gmail refresh", SlotGmailRefreshToken, true},
		{"outlook", SlotOutlookToken, true},
		{"jira", SlotJiraToken, true},
		{"empty", TokenSlot(""), false},
		{"unknown column", TokenSlot("password_hash"), false},
		{"sql injection", TokenSlot("slack_token = '' WHERE 1=1; --"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidSlot(tt.slot); got != tt.want {
				t.Errorf("isValidSlot(%q) = %v, want %v", tt.slot, got, tt.want)
			}
		})
	}
}

// 不正スロットの更新がDBアクセス前に拒否されることを検証
func TestUpdateProviderToken_RejectsUnknownSlot(t *testing.T) {
	repo := NewPostgresUserRepo(nil)

	// dbがnilでもスロット検証が先に走るためpanicしない
	err := repo.UpdateProviderToken(context.Background(), 1, TokenSlot("bogus"), "value")
	if err == nil {
		t.Fatal("expected error for unknown token slot")
	}
}
