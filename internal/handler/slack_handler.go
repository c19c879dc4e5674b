package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/workhub/internal/middleware"
	"github.com/hitoshi/workhub/internal/model"
	"github.com/hitoshi/workhub/internal/slack"
)

// SlackServiceInterface はSlackハンドラーが必要とするサービスインターフェース。
type SlackServiceInterface interface {
	InstallURL(userID int64) (string, error)
	CompleteLink(ctx context.Context, state, code string) (*model.User, error)
	Channels(ctx context.Context, userID int64) ([]slack.Channel, error)
	Messages(ctx context.Context, userID int64, channelID string) ([]slack.Message, error)
	Conversations(ctx context.Context, userID int64) ([]slack.Channel, error)
}

// SlackHandler はSlack連携のHTTPハンドラー。
type SlackHandler struct {
	service SlackServiceInterface
}

// NewSlackHandler はSlackHandlerを生成する。
func NewSlackHandler(service SlackServiceInterface) *SlackHandler {
	return &SlackHandler{service: service}
}

// Install はSlackの認可URLを返す。
// クライアント側で遷移できるよう、リダイレクトではなくJSONでURLを返す。
// GET /api/slack/install
func (h *SlackHandler) Install(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	url, err := h.service.InstallURL(userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"url": url,
	})
}

// Callback はSlackのOAuthコールバックを処理する。
// GET /api/slack/oauth/callback?code=xxx&state=yyy
func (h *SlackHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("codeとstateは必須です"))
		return
	}

	user, err := h.service.CompleteLink(r.Context(), state, code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Slack連携が完了しました。",
		"provider": model.ProviderSlack,
		"user_id":  user.ID,
	})
}

// ListChannels はチャンネル一覧を返す。
// GET /api/slack/channels
func (h *SlackHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	channels, err := h.service.Channels(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"channels": channels,
	})
}

// ListMessages はチャンネルのメッセージ履歴を返す。
// GET /api/slack/channels/{channelID}/messages
func (h *SlackHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	channelID := chi.URLParam(r, "channelID")
	if channelID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("チャンネルIDが空です"))
		return
	}

	messages, err := h.service.Messages(r.Context(), userID, channelID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"channel_id": channelID,
		"messages":   messages,
	})
}

// ListConversations はDM・プライベートグループを含む会話一覧を返す。
// GET /api/slack/conversations
func (h *SlackHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	conversations, err := h.service.Conversations(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": conversations,
	})
}
