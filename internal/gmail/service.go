package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/workhub/internal/metrics"
	"github.com/hitoshi/workhub/internal/model"
	"github.com/hitoshi/workhub/internal/repository"
	"github.com/hitoshi/workhub/internal/security"
)

// StateService はOAuth stateの発行・検証インターフェース。
type StateService interface {
	MintState(userID int64) (string, error)
	ResolveStateUser(ctx context.Context, state string) (*model.User, error)
}

// Service はGmail連携のビジネスロジックを提供する。
// 連携フローに加え、アクセストークン失効時の自動リフレッシュを担う。
type Service struct {
	client    *Client
	states    StateService
	userRepo  repository.UserRepository
	sanitizer security.TextSanitizerService
	metrics   metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(client *Client, states StateService, userRepo repository.UserRepository, sanitizer security.TextSanitizerService, collector metrics.MetricsCollector) *Service {
	return &Service{
		client:    client,
		states:    states,
		userRepo:  userRepo,
		sanitizer: sanitizer,
		metrics:   collector,
	}
}

// InstallURL は指定ユーザーの連携開始URLを生成する。
func (s *Service) InstallURL(userID int64) (string, error) {
	state, err := s.states.MintState(userID)
	if err != nil {
		return "", fmt.Errorf("failed to mint state: %w", err)
	}
	return s.client.InstallURL(state), nil
}

// CompleteLink はOAuthコールバックを処理する。
// stateからユーザーを解決し、認可コードをトークンに交換して永続化する。
// refresh_tokenが省略された場合は既存のリフレッシュトークンを維持する。
func (s *Service) CompleteLink(ctx context.Context, state, code string) (*model.User, error) {
	user, err := s.states.ResolveStateUser(ctx, state)
	if err != nil {
		return nil, err
	}

	tokens, err := s.client.ExchangeCode(ctx, code)
	if err != nil {
		s.metrics.RecordProviderCall(model.ProviderGmail, "token_exchange", false)
		return nil, model.NewProviderExchangeFailedError(model.ProviderGmail, err.Error())
	}
	s.metrics.RecordProviderCall(model.ProviderGmail, "token_exchange", true)

	if err := s.userRepo.UpdateGmailTokens(ctx, user.ID, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to store gmail tokens: %w", err)
	}

	s.metrics.RecordAccountLinked(model.ProviderGmail)
	slog.Info("gmail account linked",
		slog.Int64("user_id", user.ID),
		slog.Bool("refresh_token_issued", tokens.RefreshToken != ""),
	)

	return user, nil
}

// Emails は受信トレイの個人向けメールをmax件まで取得する。
// アクセストークンが拒否された場合、保存済みリフレッシュトークンで
// 1回だけ更新・再試行する。更新後のトークンは再試行前に永続化する。
func (s *Service) Emails(ctx context.Context, userID int64, max int) ([]Email, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}
	if user.GmailToken == "" {
		return nil, model.NewProviderNotLinkedError(model.ProviderGmail)
	}

	var emails []Email
	err = s.withFreshToken(ctx, user, func(token string) error {
		var listErr error
		emails, listErr = s.client.ListEmails(ctx, token, max)
		return listErr
	})
	s.metrics.RecordProviderCall(model.ProviderGmail, "messages.list", err == nil)
	if err != nil {
		// リフレッシュ失敗はTOKEN_REFRESH_FAILEDのまま返す
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, s.asCallFailed(err)
	}

	for i := range emails {
		emails[i].Snippet = s.sanitizer.Sanitize(emails[i].Snippet)
		emails[i].Subject = s.sanitizer.Sanitize(emails[i].Subject)
	}

	return emails, nil
}

// withFreshToken は保存済みアクセストークンでactionを実行する。
// アクセストークンが拒否された場合のみリフレッシュして永続化し、
// 再試行は1回だけ行う。ここで再び失敗した場合はそのまま失敗を返す。
func (s *Service) withFreshToken(ctx context.Context, user *model.User, action func(token string) error) error {
	start := time.Now()
	err := action(user.GmailToken)
	s.metrics.RecordProviderLatency(model.ProviderGmail, time.Since(start))
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	token, refreshErr := s.refreshToken(ctx, user)
	if refreshErr != nil {
		return refreshErr
	}
	return action(token)
}

// refreshToken は保存済みリフレッシュトークンでアクセストークンを更新し、
// 永続化してから新しいアクセストークンを返す。
// リフレッシュトークンがない場合・更新に失敗した場合はTOKEN_REFRESH_FAILEDを返す。
func (s *Service) refreshToken(ctx context.Context, user *model.User) (string, error) {
	if user.GmailRefreshToken == "" {
		return "", model.NewTokenRefreshFailedError("リフレッシュトークンが保存されていません")
	}

	tokens, err := s.client.Refresh(ctx, user.GmailRefreshToken)
	if err != nil {
		s.metrics.RecordTokenRefresh(model.ProviderGmail, false)
		slog.Warn("gmail token refresh failed",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return "", model.NewTokenRefreshFailedError(err.Error())
	}

	if err := s.userRepo.UpdateGmailTokens(ctx, user.ID, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return "", fmt.Errorf("failed to store refreshed tokens: %w", err)
	}

	s.metrics.RecordTokenRefresh(model.ProviderGmail, true)
	slog.Info("gmail access token refreshed",
		slog.Int64("user_id", user.ID),
	)

	return tokens.AccessToken, nil
}

// asCallFailed はクライアントのエラーをPROVIDER_CALL_FAILEDに変換する。
func (s *Service) asCallFailed(err error) error {
	if errors.Is(err, ErrUnauthorized) {
		return model.NewProviderCallFailedError(model.ProviderGmail, "アクセストークンが拒否されました")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return model.NewProviderCallFailedError(model.ProviderGmail, apiErr.Reason)
	}
	return model.NewProviderCallFailedError(model.ProviderGmail, err.Error())
}
