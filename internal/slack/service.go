package slack

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

// Service はSlack連携のビジネスロジックを提供する。
// 連携フロー（インストールURL生成→コールバック処理）と
// 連携済みトークンによるデータ取得を担う。
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
// stateには署名付きトークンを埋め込み、コールバックで本人に紐付ける。
func (s *Service) InstallURL(userID int64) (string, error) {
	state, err := s.states.MintState(userID)
	if err != nil {
		return "", fmt.Errorf("failed to mint state: %w", err)
	}
	return s.client.InstallURL(state), nil
}

// CompleteLink はOAuthコールバックを処理する。
// stateからユーザーを解決し、認可コードをトークンに交換して永続化する。
// state検証失敗・交換失敗の場合、トークンは一切保存されない。
func (s *Service) CompleteLink(ctx context.Context, state, code string) (*model.User, error) {
	user, err := s.states.ResolveStateUser(ctx, state)
	if err != nil {
		return nil, err
	}

	token, err := s.client.ExchangeCode(ctx, code)
	if err != nil {
		s.metrics.RecordProviderCall(model.ProviderSlack, "oauth.v2.access", false)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, model.NewProviderExchangeFailedError(model.ProviderSlack, apiErr.Reason)
		}
		return nil, model.NewProviderExchangeFailedError(model.ProviderSlack, err.Error())
	}
	s.metrics.RecordProviderCall(model.ProviderSlack, "oauth.v2.access", true)

	if err := s.userRepo.UpdateProviderToken(ctx, user.ID, repository.SlotSlackToken, token); err != nil {
		return nil, fmt.Errorf("failed to store slack token: %w", err)
	}

	s.metrics.RecordAccountLinked(model.ProviderSlack)
	slog.Info("slack account linked",
		slog.Int64("user_id", user.ID),
	)

	return user, nil
}

// Channels は連携済みトークンでチャンネル一覧を取得する。
func (s *Service) Channels(ctx context.Context, userID int64) ([]Channel, error) {
	token, err := s.tokenFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	channels, err := s.client.ListChannels(ctx, token)
	s.metrics.RecordProviderLatency(model.ProviderSlack, time.Since(start))
	s.metrics.RecordProviderCall(model.ProviderSlack, "conversations.list", err == nil)
	if err != nil {
		return nil, s.asCallFailed(err)
	}
	return channels, nil
}

// Messages は指定チャンネルのメッセージ履歴を取得する。
// メッセージ本文はサニタイズ済みのテキストを返す。
func (s *Service) Messages(ctx context.Context, userID int64, channelID string) ([]Message, error) {
	token, err := s.tokenFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	messages, err := s.client.ListMessages(ctx, token, channelID)
	s.metrics.RecordProviderLatency(model.ProviderSlack, time.Since(start))
	s.metrics.RecordProviderCall(model.ProviderSlack, "conversations.history", err == nil)
	if err != nil {
		return nil, s.asCallFailed(err)
	}

	for i := range messages {
		messages[i].Text = s.sanitizer.Sanitize(messages[i].Text)
	}
	return messages, nil
}

// Conversations はDM・プライベートグループを含む全会話の一覧を取得する。
func (s *Service) Conversations(ctx context.Context, userID int64) ([]Channel, error) {
	token, err := s.tokenFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	conversations, err := s.client.ListConversations(ctx, token)
	s.metrics.RecordProviderLatency(model.ProviderSlack, time.Since(start))
	s.metrics.RecordProviderCall(model.ProviderSlack, "conversations.list", err == nil)
	if err != nil {
		return nil, s.asCallFailed(err)
	}
	return conversations, nil
}

// tokenFor は指定ユーザーのSlackトークンを取得する。
// 未連携の場合はPROVIDER_NOT_LINKEDを返す。
func (s *Service) tokenFor(ctx context.Context, userID int64) (string, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return "", model.NewUnauthorizedError()
	}
	if user.SlackToken == "" {
		return "", model.NewProviderNotLinkedError(model.ProviderSlack)
	}
	return user.SlackToken, nil
}

// asCallFailed はクライアントのエラーをPROVIDER_CALL_FAILEDに変換する。
// Slackが報告したエラー内容はそのまま通過させる。
func (s *Service) asCallFailed(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return model.NewProviderCallFailedError(model.ProviderSlack, apiErr.Reason)
	}
	return model.NewProviderCallFailedError(model.ProviderSlack, err.Error())
}
