package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/workhub/internal/metrics"
	"github.com/hitoshi/workhub/internal/model"
	"github.com/hitoshi/workhub/internal/repository"
	"github.com/hitoshi/workhub/internal/security"
)

// mockUserRepo はテスト用のUserRepositoryモック。
type mockUserRepo struct {
	findByIDFn            func(ctx context.Context, id int64) (*model.User, error)
	updateProviderTokenFn func(ctx context.Context, userID int64, slot repository.TokenSlot, value string) error
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	return errors.New("not implemented")
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) UpdateProviderToken(ctx context.Context, userID int64, slot repository.TokenSlot, value string) error {
	if m.updateProviderTokenFn != nil {
		return m.updateProviderTokenFn(ctx, userID, slot, value)
	}
	return nil
}

func (m *mockUserRepo) UpdateGmailTokens(ctx context.Context, userID int64, access, refresh string) error {
	return errors.New("not implemented")
}

// mockStateService はテスト用のStateServiceモック。
type mockStateService struct {
	mintStateFn        func(userID int64) (string, error)
	resolveStateUserFn func(ctx context.Context, state string) (*model.User, error)
}

var _ StateService = (*mockStateService)(nil)

func (m *mockStateService) MintState(userID int64) (string, error) {
	if m.mintStateFn != nil {
		return m.mintStateFn(userID)
	}
	return "state-for-" + fmt.Sprint(userID), nil
}

func (m *mockStateService) ResolveStateUser(ctx context.Context, state string) (*model.User, error) {
	if m.resolveStateUserFn != nil {
		return m.resolveStateUserFn(ctx, state)
	}
	return nil, model.NewInvalidStateError()
}

// newTestService はhttptestサーバーに向けたServiceを組み立てる。
func newTestService(server *httptest.Server, repo *mockUserRepo, states *mockStateService) *Service {
	client := NewClient(testClientConfig(server), server.Client())
	return NewService(client, states, repo, security.NewTextSanitizer(), metrics.NewCollector(prometheus.NewRegistry()))
}

func TestService_InstallURL(t *testing.T) {
	states := &mockStateService{
		mintStateFn: func(userID int64) (string, error) {
			if userID != 42 {
				t.Errorf("userID = %d, want 42", userID)
			}
			return "signed-state", nil
		},
	}
	client := NewClient(ClientConfig{ClientID: "id", RedirectURL: "https://example.com/cb"}, nil)
	service := NewService(client, states, &mockUserRepo{}, security.NewTextSanitizer(), metrics.NewCollector(prometheus.NewRegistry()))

	installURL, err := service.InstallURL(42)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if !strings.Contains(installURL, "state=signed-state") {
		t.Errorf("stateが埋め込まれていない: %s", installURL)
	}
}

func TestService_CompleteLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":          true,
			"authed_user": map[string]interface{}{"access_token": "xoxp-new-token"},
		})
	}))
	defer server.Close()

	var storedUserID int64
	var storedSlot repository.TokenSlot
	var storedValue string
	repo := &mockUserRepo{
		updateProviderTokenFn: func(ctx context.Context, userID int64, slot repository.TokenSlot, value string) error {
			storedUserID = userID
			storedSlot = slot
			storedValue = value
			return nil
		},
	}
	states := &mockStateService{
		resolveStateUserFn: func(ctx context.Context, state string) (*model.User, error) {
			if state != "valid-state" {
				return nil, model.NewInvalidStateError()
			}
			return &model.User{ID: 7, Email: "taro@example.com"}, nil
		},
	}

	service := newTestService(server, repo, states)

	user, err := service.CompleteLink(context.Background(), "valid-state", "auth-code")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if user.ID != 7 {
		t.Errorf("user.ID = %d, want 7", user.ID)
	}
	if storedUserID != 7 {
		t.Errorf("永続化されたuserID = %d, want 7", storedUserID)
	}
	if storedSlot != repository.SlotSlackToken {
		t.Errorf("slot = %s, want %s", storedSlot, repository.SlotSlackToken)
	}
	if storedValue != "xoxp-new-token" {
		t.Errorf("token = %s, want xoxp-new-token", storedValue)
	}
}

func TestService_CompleteLink_InvalidState(t *testing.T) {
	exchangeCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchangeCalled = true
	}))
	defer server.Close()

	persisted := false
	repo := &mockUserRepo{
		updateProviderTokenFn: func(ctx context.Context, userID int64, slot repository.TokenSlot, value string) error {
			persisted = true
			return nil
		},
	}

	service := newTestService(server, repo, &mockStateService{})

	_, err := service.CompleteLink(context.Background(), "forged-state", "auth-code")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidState {
		t.Fatalf("INVALID_STATEを期待したが %v", err)
	}
	// state検証失敗時はトークン交換も永続化も行われない
	if exchangeCalled {
		t.Error("state検証失敗後にトークン交換が実行された")
	}
	if persisted {
		t.Error("state検証失敗後にトークンが永続化された")
	}
}

func TestService_CompleteLink_ExchangeFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":    false,
			"error": "invalid_code",
		})
	}))
	defer server.Close()

	persisted := false
	repo := &mockUserRepo{
		updateProviderTokenFn: func(ctx context.Context, userID int64, slot repository.TokenSlot, value string) error {
			persisted = true
			return nil
		},
	}
	states := &mockStateService{
		resolveStateUserFn: func(ctx context.Context, state string) (*model.User, error) {
			return &model.User{ID: 7}, nil
		},
	}

	service := newTestService(server, repo, states)

	_, err := service.CompleteLink(context.Background(), "valid-state", "bad-code")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderExchangeFailed {
		t.Fatalf("PROVIDER_EXCHANGE_FAILEDを期待したが %v", err)
	}
	if !strings.Contains(apiErr.Message, "invalid_code") {
		t.Errorf("プロバイダーのエラー内容が含まれていない: %s", apiErr.Message)
	}
	if persisted {
		t.Error("交換失敗後にトークンが永続化された")
	}
}

func TestService_Channels_NotLinked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("未連携ユーザーでAPIが呼ばれた")
	}))
	defer server.Close()

	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id, SlackToken: ""}, nil
		},
	}

	service := newTestService(server, repo, &mockStateService{})

	_, err := service.Channels(context.Background(), 7)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderNotLinked {
		t.Fatalf("PROVIDER_NOT_LINKEDを期待したが %v", err)
	}
}

func TestService_Channels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer xoxp-stored" {
			t.Errorf("Authorization = %s", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":       true,
			"channels": []map[string]interface{}{{"id": "C001", "name": "general"}},
		})
	}))
	defer server.Close()

	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id, SlackToken: "xoxp-stored"}, nil
		},
	}

	service := newTestService(server, repo, &mockStateService{})

	channels, err := service.Channels(context.Background(), 7)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(channels) != 1 || channels[0].Name != "general" {
		t.Errorf("channels = %+v", channels)
	}
}

func TestService_Channels_CallFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":    false,
			"error": "token_revoked",
		})
	}))
	defer server.Close()

	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id, SlackToken: "xoxp-revoked"}, nil
		},
	}

	service := newTestService(server, repo, &mockStateService{})

	_, err := service.Channels(context.Background(), 7)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderCallFailed {
		t.Fatalf("PROVIDER_CALL_FAILEDを期待したが %v", err)
	}
	// Slackが報告したエラー内容はそのまま通過する
	if !strings.Contains(apiErr.Message, "token_revoked") {
		t.Errorf("プロバイダーのエラー内容が含まれていない: %s", apiErr.Message)
	}
}

func TestService_Messages_SanitizesText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/conversations.history":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"ok": true,
				"messages": []map[string]interface{}{
					{"ts": "1700000000.000", "text": `<script>alert("x")</script>こんにちは`},
				},
			})
		default:
			t.Errorf("予期しないパス: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id, SlackToken: "xoxp-stored"}, nil
		},
	}

	service := newTestService(server, repo, &mockStateService{})

	messages, err := service.Messages(context.Background(), 7, "C001")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("メッセージ数 = %d, want 1", len(messages))
	}
	if messages[0].Text != "こんにちは" {
		t.Errorf("サニタイズ後のテキスト = %q", messages[0].Text)
	}
}
