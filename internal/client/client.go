// Package client talks to the pagenote REST API and to the signed blob URLs
// it hands out.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/pagenote/internal/model"
)

const apiPrefix = "/api/v1"

const (
	epRegister     = "/auth/register"
	epLogin        = "/auth/login"
	epNotebooks    = "/notebooks"
	epUploadURL    = "/notebooks/urls/upload"
	epDownloadURL  = "/notebooks/urls/download"
	epAssetUpload  = "/assets/upload"
	defaultTimeout = 30 * time.Second
)

// Client is safe for concurrent use once configured.
type Client struct {
	base   string
	token  string
	client *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimSuffix(baseURL, "/") + apiPrefix,
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type AuthResult struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account. The returned token is not installed on c.
func (c *Client) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	out := &AuthResult{}
	if err := c.call(ctx, http.MethodPost, epRegister, nil, credentials{Email: email, Password: password}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	out := &AuthResult{}
	if err := c.call(ctx, http.MethodPost, epLogin, nil, credentials{Email: email, Password: password}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListNotebooks(ctx context.Context) ([]model.Notebook, error) {
	items := make([]model.Notebook, 0)
	if err := c.call(ctx, http.MethodGet, epNotebooks, nil, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) CreateNotebook(ctx context.Context, title string) (*model.Notebook, error) {
	nb := &model.Notebook{}
	body := map[string]string{"title": title}
	if err := c.call(ctx, http.MethodPost, epNotebooks, nil, body, nb); err != nil {
		return nil, err
	}
	return nb, nil
}

func (c *Client) GetNotebook(ctx context.Context, id string) (*model.Notebook, error) {
	nb := &model.Notebook{}
	if err := c.call(ctx, http.MethodGet, epNotebooks+"/"+url.PathEscape(id), nil, nil, nb); err != nil {
		return nil, err
	}
	return nb, nil
}

func (c *Client) UpdateNotebook(ctx context.Context, id string, patch model.NotebookPatch) (*model.Notebook, error) {
	nb := &model.Notebook{}
	if err := c.call(ctx, http.MethodPatch, epNotebooks+"/"+url.PathEscape(id), nil, patch, nb); err != nil {
		return nil, err
	}
	return nb, nil
}

func (c *Client) DeleteNotebook(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, epNotebooks+"/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) UploadURL(ctx context.Context, id, pageID string) (*model.SignedURL, error) {
	return c.signedURL(ctx, epUploadURL, url.Values{"id": {id}, "pageId": {pageID}})
}

func (c *Client) DownloadURL(ctx context.Context, id, pageID string) (*model.SignedURL, error) {
	return c.signedURL(ctx, epDownloadURL, url.Values{"id": {id}, "pageId": {pageID}})
}

func (c *Client) AssetUploadURL(ctx context.Context, filename, contentType string) (*model.SignedURL, error) {
	return c.signedURL(ctx, epAssetUpload, url.Values{"filename": {filename}, "contentType": {contentType}})
}

func (c *Client) signedURL(ctx context.Context, ep string, query url.Values) (*model.SignedURL, error) {
	out := &model.SignedURL{}
	if err := c.call(ctx, http.MethodGet, ep, query, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutBlob uploads body to a signed URL. No API token is sent.
func (c *Client) PutBlob(ctx context.Context, signedURL, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	return expectOK(res, "blob upload failed")
}

// GetBlob downloads a signed URL. A non-2xx answer yields a *StatusError.
func (c *Client) GetBlob(ctx context.Context, signedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if err := expectOK(res, "blob download failed"); err != nil {
		return nil, err
	}
	return io.ReadAll(res.Body)
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) call(ctx context.Context, method, ep string, query url.Values, payload, dst interface{}) error {
	target := c.base + ep
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	logutil.GetLogger(ctx).Debug("api request", zap.String("method", method), zap.String("endpoint", ep))
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := expectOK(res, "api request failed"); err != nil {
		return err
	}
	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Code != 0 {
		return &APIError{Code: env.Code, Msg: env.Msg}
	}
	if dst == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
