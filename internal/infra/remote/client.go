package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"

	"tracing-quiz-service/internal/domain"
)

const (
	userPath  = "/api/v1/users/me"
	valuePath = "/api/v1/users/me/values/{key}"
)

type Options struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

// Client talks to the account API. Transport errors and 5xx answers are
// retried with backoff; any other non-2xx answer fails immediately.
type Client struct {
	http    *req.Client
	retries int
	log     *log.Logger
}

func NewClient(opts Options, logger *log.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := req.C().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal)
	return &Client{http: httpClient, retries: opts.Retries, log: logger}
}

// ForToken returns the account authorized by token.
func (c *Client) ForToken(token string) *Account {
	return &Account{client: c, token: token}
}

func (c *Client) request(ctx context.Context, token string) *req.Request {
	return c.http.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		SetHeader("Accept", "application/json").
		SetRetryCount(c.retries).
		SetRetryBackoffInterval(50*time.Millisecond, time.Second).
		SetRetryHook(func(resp *req.Response, err error) {
			if err != nil {
				c.log.Warn("account request failed, retrying", "err", err)
				return
			}
			c.log.Warn("account request failed, retrying", "status", resp.GetStatusCode())
		}).
		SetRetryCondition(func(resp *req.Response, err error) bool {
			return err != nil || resp.GetStatusCode() >= http.StatusInternalServerError
		})
}

// Account is one user's view of the account API.
type Account struct {
	client *Client
	token  string
}

type valueBody struct {
	Value string `json:"value"`
}

func (a *Account) GetUserRecord(ctx context.Context) (domain.UserRecord, error) {
	var rec domain.UserRecord
	resp, err := a.client.request(ctx, a.token).
		SetSuccessResult(&rec).
		Get(userPath)
	if err := check(resp, err, "get user"); err != nil {
		return domain.UserRecord{}, err
	}
	return rec, nil
}

// PatchUserRecord sends patch. A star delta is not idempotent, so it is sent once.
func (a *Account) PatchUserRecord(ctx context.Context, patch domain.UserPatch) (domain.UserRecord, error) {
	var rec domain.UserRecord
	r := a.client.request(ctx, a.token)
	if patch.StarDelta != nil {
		r.SetRetryCount(0)
	}
	resp, err := r.
		SetBody(patch).
		SetSuccessResult(&rec).
		Patch(userPath)
	if err := check(resp, err, "patch user"); err != nil {
		return domain.UserRecord{}, err
	}
	return rec, nil
}

// GetValue reads key; a 404 means the key was never written.
func (a *Account) GetValue(ctx context.Context, key string) (string, bool, error) {
	var body valueBody
	resp, err := a.client.request(ctx, a.token).
		SetPathParam("key", key).
		SetSuccessResult(&body).
		Get(valuePath)
	if err == nil && resp.GetStatusCode() == http.StatusNotFound {
		return "", false, nil
	}
	if err := check(resp, err, "get value "+key); err != nil {
		return "", false, err
	}
	return body.Value, true, nil
}

func (a *Account) SetValue(ctx context.Context, key, value string) error {
	resp, err := a.client.request(ctx, a.token).
		SetPathParam("key", key).
		SetBody(valueBody{Value: value}).
		Put(valuePath)
	return check(resp, err, "set value "+key)
}

func check(resp *req.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrRemoteRequestFailed, op, err)
	}
	if resp.GetStatusCode() == http.StatusConflict {
		return fmt.Errorf("%w: %s", domain.ErrInsufficientStars, op)
	}
	if !resp.IsSuccessState() {
		return fmt.Errorf("%w: %s: status %d", domain.ErrRemoteRequestFailed, op, resp.GetStatusCode())
	}
	return nil
}
