// Package gmail はGoogleのOAuth連携フローとGmail APIクライアントを提供する。
package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultAPIBaseURL = "https://gmail.googleapis.com/gmail/v1"

// gmailScopes は連携時に要求する固定スコープ。
// gmail.readonlyに加え、プロフィール表示用のOpenID Connectスコープを含む。
var gmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// ErrUnauthorized はアクセストークンがGmail APIに拒否されたことを表す。
// サービス層はこのエラーを検知してリフレッシュを1回だけ試みる。
var ErrUnauthorized = errors.New("gmail: access token rejected")

// ClientConfig はGmailクライアントの設定。
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

// Tokens はトークン交換・リフレッシュの結果を表す。
// Googleは再連携時にrefresh_tokenを省略することがあるため、Refreshは空になりうる。
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Client はGoogle OAuthとGmail APIのクライアント。
type Client struct {
	oauth      oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// NewClient はClientを生成する。
// httpClientにはsecurity.OutboundClientServiceが生成した
// SSRF防止付きクライアントを渡すことを想定している。
func NewClient(config ClientConfig, httpClient *http.Client) *Client {
	endpoint := google.Endpoint
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		oauth: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       gmailScopes,
			Endpoint:     endpoint,
		},
		apiBaseURL: config.APIBaseURL,
		httpClient: httpClient,
	}
}

// InstallURL はGoogleの認可URLを生成する。
// access_type=offlineとprompt=consentを指定し、refresh_tokenの発行を確実にする。
func (c *Client) InstallURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode は認可コードをトークンに交換する。
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	return &Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

// Refresh はリフレッシュトークンで新しいアクセストークンを取得する。
// Googleがトークンをローテーションした場合は新しいrefresh_tokenも返す。
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	source := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	result := &Tokens{AccessToken: token.AccessToken}
	if token.RefreshToken != refreshToken {
		result.RefreshToken = token.RefreshToken
	}
	return result, nil
}

// Email は受信メールの要約を表す。
type Email struct {
	ID      string `json:"id"`
	Snippet string `json:"snippet"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
}

// messageListResponse はmessages.listのレスポンス。
type messageListResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// messageDetail はmessages.get format=fullのレスポンス。
type messageDetail struct {
	ID      string `json:"id"`
	Snippet string `json:"snippet"`
	Payload struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}

// ListEmails は受信トレイの個人向けメールをmax件まで取得する。
// messages.listでIDを列挙し、各IDをmessages.getで要約に展開する。
// トークンが拒否された場合はErrUnauthorizedを返す。
func (c *Client) ListEmails(ctx context.Context, token string, max int) ([]Email, error) {
	params := url.Values{
		"labelIds":   {"INBOX", "CATEGORY_PERSONAL"},
		"maxResults": {strconv.Itoa(max)},
	}

	var list messageListResponse
	if err := c.get(ctx, token, "/users/me/messages?"+params.Encode(), &list); err != nil {
		return nil, err
	}

	emails := make([]Email, 0, len(list.Messages))
	for _, msg := range list.Messages {
		var detail messageDetail
		if err := c.get(ctx, token, "/users/me/messages/"+msg.ID+"?format=full", &detail); err != nil {
			return nil, err
		}

		email := Email{
			ID:      detail.ID,
			Snippet: detail.Snippet,
		}
		for _, h := range detail.Payload.Headers {
			switch h.Name {
			case "From":
				email.From = h.Value
			case "Subject":
				email.Subject = h.Value
			case "Date":
				email.Date = h.Value
			}
		}
		emails = append(emails, email)
	}

	return emails, nil
}

// apiErrorResponse はGmail APIのエラーレスポンス。
type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// get はBearerトークン付きでGmail APIのGETリクエストを実行する。
// 401はErrUnauthorized、その他の非2xxはAPIErrorに変換する。
func (c *Client) get(ctx context.Context, token, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		reason := http.StatusText(resp.StatusCode)
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
			reason = apiErr.Error.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Reason: reason}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// APIError はGmail APIが報告した401以外のエラーを表す。
type APIError struct {
	StatusCode int
	Reason     string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("gmail API error (status %d): %s", e.StatusCode, e.Reason)
}
