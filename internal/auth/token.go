package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// stateMaxAge はOAuth stateトークンの有効期間。
// プロバイダーのリダイレクト往復が完了するまでの猶予として10分を確保する。
const stateMaxAge = 10 * time.Minute

// purposeOAuthState はOAuth state用トークンのpurposeクレーム値。
// セッショントークンをstateとして流用されるのを防ぐ。
const purposeOAuthState = "oauth_state"

var (
	// ErrTokenExpired はトークンの有効期限切れを表す。
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken は署名不正・形式不正などの無効トークンを表す。
	ErrInvalidToken = errors.New("invalid token")
)

// Claims はセッショントークンおよびOAuth stateトークンのクレーム。
type Claims struct {
	UserID  int64  `json:"user_id"`
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// TokenService はHS256署名付きトークンの発行と検証を提供する。
// セッショントークン（ログイン時発行）とOAuth stateトークン
// （連携開始時発行）の両方を同一のサーバー秘密鍵で扱う。
type TokenService struct {
	secret        []byte
	sessionMaxAge time.Duration
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(secret string, sessionMaxAge time.Duration) *TokenService {
	return &TokenService{
		secret:        []byte(secret),
		sessionMaxAge: sessionMaxAge,
	}
}

// MintSession はログイン成功時のセッショントークンを発行する。
// 有効期限と発行時刻を返す。
func (s *TokenService) MintSession(userID int64) (string, time.Time, error) {
	return s.mint(userID, "", s.sessionMaxAge)
}

// VerifySession はセッショントークンを検証し、ユーザーIDを返す。
// 署名不正・期限切れ・user_id欠落はすべてエラーになる。
// OAuth state用トークンはセッションとして受け付けない。
func (s *TokenService) VerifySession(tokenString string) (int64, error) {
	claims, err := s.verify(tokenString)
	if err != nil {
		return 0, err
	}
	if claims.Purpose != "" {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

// MintState はOAuth連携フロー用の署名付きstateトークンを発行する。
// 生のユーザーIDをstateに載せると他人のコールバックを偽装できるため、
// 署名と短い有効期限で束縛する。
func (s *TokenService) MintState(userID int64) (string, error) {
	token, _, err := s.mint(userID, purposeOAuthState, stateMaxAge)
	return token, err
}

// VerifyState はOAuthコールバックのstateトークンを検証し、ユーザーIDを返す。
// セッショントークンの流用はpurposeクレームの不一致で拒否される。
func (s *TokenService) VerifyState(state string) (int64, error) {
	claims, err := s.verify(state)
	if err != nil {
		return 0, err
	}
	if claims.Purpose != purposeOAuthState {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

// mint は指定クレームのHS256トークンを発行する。
func (s *TokenService) mint(userID int64, purpose string, maxAge time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(maxAge)

	claims := &Claims{
		UserID:  userID,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// verify はトークンの署名・期限・user_idクレームを検証する。
func (s *TokenService) verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
