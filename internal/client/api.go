package client

import (
	"context"
	"errors"
	"net/http"
)

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RegisterParams struct {
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Password string  `json:"password"`
	FullName *string `json:"full_name,omitempty"`
}

// Nil fields are left as is
type UpdateProfileParams struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Register creates account. It does not login
func (c *Client) Register(ctx context.Context, params RegisterParams) (Identity, error) {
	var identity Identity
	err := c.send(ctx, http.MethodPost, "/auth/register", "", params, &identity)
	return identity, err
}

// Login replaces current session with a new one
func (c *Client) Login(ctx context.Context, email string, password string) (Identity, error) {
	var pair tokenPair
	err := c.send(ctx, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password}, &pair)
	if err != nil {
		return Identity{}, err
	}

	var identity Identity
	if err := c.send(ctx, http.MethodGet, "/users/me", pair.AccessToken, nil, &identity); err != nil {
		return Identity{}, err
	}

	session := Session{
		Token:           pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		User:            &identity,
		IsAuthenticated: true,
	}

	c.mu.Lock()
	c.session = session
	c.generation++
	c.persistLocked()
	c.mu.Unlock()

	c.logger.Info("Logged in", "user_id", identity.ID)
	return identity, nil
}

// Me fetches profile of current user and updates session snapshot
func (c *Client) Me(ctx context.Context) (Identity, error) {
	if !c.Authenticated() {
		return Identity{}, ErrNotAuthenticated
	}

	var identity Identity
	if err := c.call(ctx, http.MethodGet, "/users/me", nil, &identity); err != nil {
		return Identity{}, err
	}

	c.rememberIdentity(identity)
	return identity, nil
}

func (c *Client) UpdateMe(ctx context.Context, params UpdateProfileParams) (Identity, error) {
	if !c.Authenticated() {
		return Identity{}, ErrNotAuthenticated
	}

	var identity Identity
	if err := c.call(ctx, http.MethodPut, "/users/me", params, &identity); err != nil {
		return Identity{}, err
	}

	c.rememberIdentity(identity)
	return identity, nil
}

func (c *Client) VerifyToken(ctx context.Context) error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}

	var resp messageResponse
	return c.call(ctx, http.MethodPost, "/auth/verify-token", nil, &resp)
}

// Logout clears the session right away, so requests waiting for refresh are abandoned.
// Then asks server to revoke the tokens. Expired access token is not an error here
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	old := c.session
	c.clearLocked()
	c.mu.Unlock()

	if old.Token == "" {
		return nil
	}

	var resp messageResponse
	err := c.send(ctx, http.MethodPost, "/auth/logout", old.Token, refreshRequest{RefreshToken: old.RefreshToken}, &resp)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		c.logger.Debug("Server rejected logout, session was already invalid", "code", apiErr.Code)
		return nil
	}
	return err
}

func (c *Client) rememberIdentity(identity Identity) {
	c.mu.Lock()
	if !c.session.IsAuthenticated {
		c.mu.Unlock()
		return
	}
	c.session.User = &identity
	c.persistLocked()
	c.mu.Unlock()
}
