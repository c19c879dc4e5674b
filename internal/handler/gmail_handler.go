package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/workhub/internal/gmail"
	"github.com/hitoshi/workhub/internal/middleware"
	"github.com/hitoshi/workhub/internal/model"
)

// 一度に取得できるメール件数の上限。
const maxMailLimit = 100

// GmailServiceInterface はGmailハンドラーが必要とするサービスインターフェース。
type GmailServiceInterface interface {
	InstallURL(userID int64) (string, error)
	CompleteLink(ctx context.Context, state, code string) (*model.User, error)
	Emails(ctx context.Context, userID int64, max int) ([]gmail.Email, error)
}

// GmailHandlerConfig はGmailハンドラーの設定。
type GmailHandlerConfig struct {
	DefaultMaxMail int // maxクエリパラメータ省略時の取得件数
}

// GmailHandler はGmail連携のHTTPハンドラー。
type GmailHandler struct {
	service GmailServiceInterface
	config  GmailHandlerConfig
}

// NewGmailHandler はGmailHandlerを生成する。
func NewGmailHandler(service GmailServiceInterface, config GmailHandlerConfig) *GmailHandler {
	return &GmailHandler{
		service: service,
		config:  config,
	}
}

// Install はGoogleの認可URLを返す。
// クライアント側で遷移できるよう、リダイレクトではなくJSONでURLを返す。
// GET /api/gmail/install
func (h *GmailHandler) Install(w http.ResponseWriter, r *http.Request) {
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

// Callback はGoogleのOAuthコールバックを処理する。
// GET /api/gmail/oauth/callback?code=xxx&state=yyy
func (h *GmailHandler) Callback(w http.ResponseWriter, r *http.Request) {
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
		"message":  "Gmail連携が完了しました。",
		"provider": model.ProviderGmail,
		"user_id":  user.ID,
	})
}

// ListEmails は受信トレイの個人向けメールを返す。
// GET /api/gmail/emails?max=N
func (h *GmailHandler) ListEmails(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	max := h.config.DefaultMaxMail
	if raw := r.URL.Query().Get("max"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxMailLimit {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("maxは1〜100の整数で指定してください"))
			return
		}
		max = parsed
	}

	emails, err := h.service.Emails(r.Context(), userID, max)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"emails": emails,
	})
}
