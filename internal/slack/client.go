// Package slack はSlackのOAuth連携フローとデータ取得APIクライアントを提供する。
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	defaultAuthorizeURL = "https://slack.com/oauth/v2/authorize"
	defaultTokenURL     = "https://slack.com/api/oauth.v2.access"
	defaultAPIBaseURL   = "https://slack.com/api"

	// botScopes / userScopes はインストール時に要求する固定スコープ。
	botScopes  = "channels:history,groups:history,im:history,channels:read,groups:read,im:read,users:read"
	userScopes = "channels:read,groups:read,im:read,mpim:read,channels:history,groups:history,im:history,mpim:history,users:read"

	// userInfoCacheTTL はusers.info結果のキャッシュ有効期間。
	// メッセージ一覧は同一ユーザーIDを繰り返し参照するため、
	// 呼び出しごとのN+1ルックアップを実質1回に抑える。
	userInfoCacheTTL = 5 * time.Minute
)

// ClientConfig はSlackクライアントの設定。
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthorizeURL string
	TokenURL     string
	APIBaseURL   string
}

// Client はSlack Web APIのクライアント。
// すべての呼び出しは単一ページの同期呼び出しで、ページネーションは行わない。
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	userCache  *ttlcache.Cache[string, UserInfo]
}

// NewClient はClientを生成する。
// httpClientにはsecurity.OutboundClientServiceが生成した
// SSRF防止付きクライアントを渡すことを想定している。
func NewClient(config ClientConfig, httpClient *http.Client) *Client {
	if config.AuthorizeURL == "" {
		config.AuthorizeURL = defaultAuthorizeURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, UserInfo](userInfoCacheTTL),
	)
	go cache.Start()

	return &Client{
		config:     config,
		httpClient: httpClient,
		userCache:  cache,
	}
}

// InstallURL はSlackの認可URLを生成する。
// stateには署名付きstateトークンを渡す。
func (c *Client) InstallURL(state string) string {
	params := url.Values{
		"client_id":    {c.config.ClientID},
		"scope":        {botScopes},
		"user_scope":   {userScopes},
		"redirect_uri": {c.config.RedirectURL},
		"state":        {state},
	}
	return c.config.AuthorizeURL + "?" + params.Encode()
}

// tokenResponse はoauth.v2.accessのレスポンス。
// ユーザートークンはauthed_user配下に含まれる。
type tokenResponse struct {
	OK         bool   `json:"ok"`
	Error      string `json:"error"`
	AuthedUser struct {
		AccessToken string `json:"access_token"`
	} `json:"authed_user"`
}

// ExchangeCode は認可コードをユーザーアクセストークンに交換する。
// Slackはエラー時もHTTP 200で{ok:false, error:...}を返すため、
// ステータスコードではなくokフィールドで判定する。
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	data := url.Values{
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"code":          {code},
		"redirect_uri":  {c.config.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	if !tokenResp.OK {
		return "", &APIError{Method: "oauth.v2.access", Reason: tokenResp.Error}
	}
	if tokenResp.AuthedUser.AccessToken == "" {
		return "", &APIError{Method: "oauth.v2.access", Reason: "missing authed_user.access_token"}
	}

	return tokenResp.AuthedUser.AccessToken, nil
}

// Channel はSlackのチャンネルまたは会話を表す。
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	IsIM      bool   `json:"is_im,omitempty"`
	IsPrivate bool   `json:"is_private,omitempty"`
	UserID    string `json:"user,omitempty"`
	Username  string `json:"username,omitempty"`
	RealName  string `json:"real_name,omitempty"`
}

// Message はSlackのメッセージを表す。
type Message struct {
	Ts       string `json:"ts"`
	UserID   string `json:"user,omitempty"`
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	RealName string `json:"real_name,omitempty"`
}

// UserInfo はusers.infoで解決したユーザー表示情報を表す。
type UserInfo struct {
	Name     string
	RealName string
}

// channelListResponse はconversations.listのレスポンス。
type channelListResponse struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error"`
	Channels []Channel `json:"channels"`
}

// historyResponse はconversations.historyのレスポンス。
type historyResponse struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error"`
	Messages []Message `json:"messages"`
}

// userInfoResponse はusers.infoのレスポンス。
type userInfoResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	User  struct {
		Name     string `json:"name"`
		RealName string `json:"real_name"`
	} `json:"user"`
}

// ListChannels はチャンネル一覧を取得する（単一ページ）。
func (c *Client) ListChannels(ctx context.Context, token string) ([]Channel, error) {
	var result channelListResponse
	if err := c.get(ctx, token, "conversations.list", nil, &result); err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, &APIError{Method: "conversations.list", Reason: result.Error}
	}
	return result.Channels, nil
}

// ListMessages は指定チャンネルのメッセージ履歴を取得する（単一ページ）。
// 各メッセージのuser IDはusers.infoで表示名に解決する。
// TTLキャッシュにより同一ユーザーへのルックアップは呼び出しごとに1回で済む。
func (c *Client) ListMessages(ctx context.Context, token, channelID string) ([]Message, error) {
	var result historyResponse
	params := url.Values{"channel": {channelID}}
	if err := c.get(ctx, token, "conversations.history", params, &result); err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, &APIError{Method: "conversations.history", Reason: result.Error}
	}

	for i := range result.Messages {
		if result.Messages[i].UserID == "" {
			continue
		}
		info, err := c.userInfo(ctx, token, result.Messages[i].UserID)
		if err != nil {
			// 表示名の解決失敗はメッセージ本体の取得を妨げない
			continue
		}
		result.Messages[i].Username = info.Name
		result.Messages[i].RealName = info.RealName
	}

	return result.Messages, nil
}

// ListConversations はDM・プライベートグループを含む全会話の一覧を取得する。
// IM（1対1のDM）には相手ユーザーの表示名を付与する。
func (c *Client) ListConversations(ctx context.Context, token string) ([]Channel, error) {
	var result channelListResponse
	params := url.Values{"types": {"public_channel,private_channel,im,mpim"}}
	if err := c.get(ctx, token, "conversations.list", params, &result); err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, &APIError{Method: "conversations.list", Reason: result.Error}
	}

	for i := range result.Channels {
		if !result.Channels[i].IsIM || result.Channels[i].UserID == "" {
			continue
		}
		info, err := c.userInfo(ctx, token, result.Channels[i].UserID)
		if err != nil {
			continue
		}
		result.Channels[i].Username = info.Name
		result.Channels[i].RealName = info.RealName
	}

	return result.Channels, nil
}

// userInfo はusers.infoでユーザー表示情報を解決する。TTLキャッシュを経由する。
func (c *Client) userInfo(ctx context.Context, token, userID string) (UserInfo, error) {
	cacheKey := token + ":" + userID
	if item := c.userCache.Get(cacheKey); item != nil {
		return item.Value(), nil
	}

	var result userInfoResponse
	params := url.Values{"user": {userID}}
	if err := c.get(ctx, token, "users.info", params, &result); err != nil {
		return UserInfo{}, err
	}
	if !result.OK {
		return UserInfo{}, &APIError{Method: "users.info", Reason: result.Error}
	}

	info := UserInfo{
		Name:     result.User.Name,
		RealName: result.User.RealName,
	}
	c.userCache.Set(cacheKey, info, ttlcache.DefaultTTL)

	return info, nil
}

// get はBearerトークン付きでSlack Web APIのGETリクエストを実行する。
func (c *Client) get(ctx context.Context, token, method string, params url.Values, dest interface{}) error {
	endpoint := c.config.APIBaseURL + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", method, err)
	}

	return nil
}

// APIError はSlack APIが報告したエラーを表す。
// Slackの{ok:false, error:"..."}エンベロープに対応する。
type APIError struct {
	Method string
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Reason)
}
