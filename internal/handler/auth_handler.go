package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/workhub/internal/auth"
	"github.com/hitoshi/workhub/internal/middleware"
	"github.com/hitoshi/workhub/internal/model"
)

// パスワードの最小長。bcryptの入力上限（72バイト）を超える値は拒否する。
const (
	passwordMinLength = 8
	passwordMaxLength = 72
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, name, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	CurrentUser(ctx context.Context, userID int64) (*model.User, error)
}

// AuthHandler はユーザー登録・ログインのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// signupRequest はユーザー登録リクエストのボディ。
type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup はユーザー登録を処理する。
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if msg := validateSignup(&req); msg != "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(msg))
		return
	}

	user, err := h.service.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "ユーザー登録が完了しました。",
		"user_id": user.ID,
	})
}

// Login はログインを処理し、セッショントークンを発行する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if req.Email == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("emailとpasswordは必須です"))
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "ログインしました。",
		"user_id":      result.UserID,
		"access_token": result.AccessToken,
		"expires_in":   int(time.Until(result.ExpiresAt).Seconds()),
	})
}

// Me は現在のログインユーザー情報と連携状況を返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     user.ID,
		"email":  user.Email,
		"name":   user.Name,
		"linked": user.LinkedProviders(),
	})
}

// validateSignup は登録リクエストを検証し、問題があれば理由を返す。
func validateSignup(req *signupRequest) string {
	if req.Name == "" {
		return "nameは必須です"
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return "emailの形式が正しくありません"
	}
	if len(req.Password) < passwordMinLength {
		return "passwordは8文字以上にしてください"
	}
	if len(req.Password) > passwordMaxLength {
		return "passwordが長すぎます"
	}
	return ""
}
