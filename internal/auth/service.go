// Package auth はユーザー登録・ログイン・セッション検証と
// OAuth stateの発行・検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/workhub/internal/model"
	"github.com/hitoshi/workhub/internal/repository"
)

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	tokens   *TokenService
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tokens *TokenService) *Service {
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
	}
}

// LoginResult はログイン成功時の発行結果を表す。
type LoginResult struct {
	UserID      int64
	AccessToken string
	ExpiresAt   time.Time
}

// Signup は新規ユーザーを登録する。
// email重複の場合はDUPLICATE_EMAILエラーを返す。
func (s *Service) Signup(ctx context.Context, name, email, password string) (*model.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewDuplicateEmailError(email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created",
		slog.Int64("user_id", user.ID),
	)

	return user, nil
}

// Login はemailとパスワードを検証し、セッショントークンを発行する。
// email不明とパスワード不一致は区別せずINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !CheckPassword(password, user.PasswordHash) {
		return nil, model.NewInvalidCredentialsError()
	}

	token, expiresAt, err := s.tokens.MintSession(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mint session token: %w", err)
	}

	return &LoginResult{
		UserID:      user.ID,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}

// CurrentUser はセッション検証済みのユーザーIDからユーザーを取得する。
// ユーザーが存在しない場合はUNAUTHORIZEDを返す（削除済みユーザーのトークン対策）。
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}
	return user, nil
}

// MintState は指定ユーザーのOAuth stateトークンを発行する。
func (s *Service) MintState(userID int64) (string, error) {
	return s.tokens.MintState(userID)
}

// ResolveStateUser はOAuthコールバックのstateを検証し、対応するユーザーを返す。
// state検証失敗はINVALID_STATE、検証は通るがユーザーが存在しない場合は
// USER_NOT_FOUNDを返す。いずれの場合もトークンは永続化されない。
func (s *Service) ResolveStateUser(ctx context.Context, state string) (*model.User, error) {
	userID, err := s.tokens.VerifyState(state)
	if err != nil {
		slog.Warn("oauth state verification failed",
			slog.String("error", err.Error()),
		)
		return nil, model.NewInvalidStateError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}
