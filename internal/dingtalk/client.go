package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/circuitbreaker"
)

const (
	DefaultOAPIBaseURL = "https://oapi.dingtalk.com"
	DefaultAPIBaseURL  = "https://api.dingtalk.com"
)

// tokenSkew renews a cached token slightly before it expires.
const tokenSkew = time.Minute

// Endpoints holds the two DingTalk API hosts.
type Endpoints struct {
	OAPI string
	API  string
}

func (e Endpoints) withDefaults() Endpoints {
	if e.OAPI == "" {
		e.OAPI = DefaultOAPIBaseURL
	}
	if e.API == "" {
		e.API = DefaultAPIBaseURL
	}
	return e
}

// Client calls the DingTalk app APIs for one app key. The access token is
// cached until it expires.
type Client struct {
	appKey    string
	appSecret string
	endpoints Endpoints
	doer      circuitbreaker.HTTPDoer
	logger    *zap.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewClient creates a client for one app.
func NewClient(appKey, appSecret string, endpoints Endpoints, doer circuitbreaker.HTTPDoer, logger *zap.Logger) *Client {
	return &Client{
		appKey:    appKey,
		appSecret: appSecret,
		endpoints: endpoints.withDefaults(),
		doer:      doer,
		logger:    logger,
		now:       time.Now,
	}
}

// APIError is a DingTalk response with a non-zero errcode.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dingtalk error %d: %s", e.Code, e.Message)
}

type oapiResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (r oapiResponse) err() error {
	if r.ErrCode != 0 {
		return &APIError{Code: r.ErrCode, Message: r.ErrMsg}
	}
	return nil
}

// AccessToken returns a valid app access token, fetching a new one when
// the cached token is missing or about to expire.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	q := url.Values{"appkey": {c.appKey}, "appsecret": {c.appSecret}}
	var out struct {
		oapiResponse
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := c.oapi(ctx, http.MethodGet, c.endpoints.OAPI+"/gettoken?"+q.Encode(), nil, &out); err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("get access token: empty token in response")
	}

	c.token = out.AccessToken
	c.expiresAt = c.now().Add(time.Duration(out.ExpiresIn)*time.Second - tokenSkew)
	c.logger.Debug("dingtalk access token refreshed", zap.Int("expires_in", out.ExpiresIn))
	return c.token, nil
}

// UserIDByMobile looks up the platform user id of a mobile number.
func (c *Client) UserIDByMobile(ctx context.Context, mobile string) (string, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	var out struct {
		oapiResponse
		Result *struct {
			UserID string `json:"userid"`
		} `json:"result"`
	}
	endpoint := c.endpoints.OAPI + "/topapi/v2/user/getbymobile?" + url.Values{"access_token": {token}}.Encode()
	if err := c.oapi(ctx, http.MethodPost, endpoint, map[string]string{"mobile": mobile}, &out); err != nil {
		return "", fmt.Errorf("get user by mobile: %w", err)
	}
	if out.Result == nil || out.Result.UserID == "" {
		return "", fmt.Errorf("get user by mobile: no userid in response")
	}
	return out.Result.UserID, nil
}

// SendWorkMessage sends an asynchronous work notification. body carries
// agent_id, userid_list and msg.
func (c *Client) SendWorkMessage(ctx context.Context, body map[string]any) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	var out struct {
		oapiResponse
		TaskID int64 `json:"task_id"`
	}
	endpoint := c.endpoints.OAPI + "/topapi/message/corpconversation/asyncsend_v2?" + url.Values{"access_token": {token}}.Encode()
	if err := c.oapi(ctx, http.MethodPost, endpoint, body, &out); err != nil {
		return fmt.Errorf("send work message: %w", err)
	}
	c.logger.Debug("dingtalk work message accepted", zap.Int64("task_id", out.TaskID))
	return nil
}

// CreateTodoTask creates a to-do task owned by unionID.
func (c *Client) CreateTodoTask(ctx context.Context, unionID string, body map[string]any) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	var out struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		ID      string `json:"id"`
	}
	endpoint := c.endpoints.API + "/v1.0/todo/users/" + url.PathEscape(unionID) + "/tasks"
	headers := map[string]string{"x-acs-dingtalk-access-token": token}
	status, err := doJSON(ctx, c.doer, http.MethodPost, endpoint, headers, body, &out)
	if err != nil {
		return fmt.Errorf("create todo task: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("create todo task: status %d: %s", status, out.Message)
	}
	return nil
}

type oapiResult interface {
	err() error
}

// oapi calls an oapi.dingtalk.com endpoint. Non-2xx statuses and non-zero
// errcodes are errors.
func (c *Client) oapi(ctx context.Context, method, endpoint string, body any, out oapiResult) error {
	status, err := doJSON(ctx, c.doer, method, endpoint, nil, body, out)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("unexpected status %d", status)
	}
	return out.err()
}

// doJSON sends a JSON request and decodes a JSON response into out. The
// HTTP status is returned even when decoding fails.
func doJSON(ctx context.Context, doer circuitbreaker.HTTPDoer, method, endpoint string, headers map[string]string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := doer.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}
