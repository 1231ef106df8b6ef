// Package client is a Go client for the support desk API, used by the watch
// command and by integration tests.
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

	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/models"
)

const tokenHeader = "X-Session-Token"

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   string
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login stores the issued token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (models.User, error) {
	var resp struct {
		SessionToken string      `json:"session_token"`
		User         models.User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth", map[string]any{
		"action": "login", "username": username, "password": password,
	}, &resp)
	if err != nil {
		return models.User{}, err
	}
	c.Token = resp.SessionToken
	return resp.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth", map[string]any{"action": "logout"}, nil)
	c.Token = ""
	return err
}

func (c *Client) ListChats(ctx context.Context, status string) ([]models.ChatSummary, error) {
	path := "/api/chats"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out []models.ChatSummary
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Messages(ctx context.Context, chatID int64) ([]models.Message, error) {
	var out []models.Message
	err := c.do(ctx, http.MethodPost, "/api/chats", map[string]any{"action": "get_messages", "chat_id": chatID}, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, senderType models.SenderType, text string) (models.Message, error) {
	var out models.Message
	err := c.do(ctx, http.MethodPost, "/api/chats", map[string]any{
		"action": "send_message", "chat_id": chatID, "sender_type": senderType, "message_text": text,
	}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set(tokenHeader, c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError turns the error envelope back into an *errs.Error so callers
// can use errors.Is against the sentinels and errs.SessionLost.
func decodeError(resp *http.Response) error {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Code == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return &errs.Error{Kind: kindFor(resp.StatusCode), Code: body.Error.Code, Message: body.Error.Message}
}

func kindFor(status int) errs.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.KindAuth
	case status == http.StatusBadRequest:
		return errs.KindValidation
	case status == http.StatusConflict:
		return errs.KindConflict
	case status == http.StatusNotFound:
		return errs.KindNotFound
	case status == http.StatusTooManyRequests:
		return errs.KindRateLimited
	}
	return errs.KindInternal
}
