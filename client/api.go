package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AuthResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// Identity is what the server reads from the caller's token.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
}

type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
}

type UpdateProfileRequest struct {
	Name   *string `json:"name,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

type ListOptions struct {
	Search string
	Page   int
	Limit  int
}

type UserPage struct {
	Users []User
	Total int64
}

// Login does not send a token; a 401 here is a credentials error, not a
// lost session.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, in RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if _, err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register", body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Profile(ctx context.Context) (*Identity, error) {
	var out Identity
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/auth/profile", protected: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/users/profile", protected: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateMe(ctx context.Context, in UpdateProfileRequest) (*User, error) {
	var out User
	if _, err := c.do(ctx, request{method: http.MethodPatch, path: "/users/profile", body: in, protected: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	_, err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/users/profile/password",
		body:      map[string]string{"currentPassword": current, "newPassword": next},
		protected: true,
	}, nil)
	return err
}

// UploadAvatar sends an image as multipart field "avatar".
func (c *Client) UploadAvatar(ctx context.Context, filename string, image io.Reader) (*User, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("avatar", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var out User
	_, err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/users/profile/avatar",
		rawBody:     &buf,
		contentType: w.FormDataContentType(),
		protected:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListUsers(ctx context.Context, opts ListOptions) (*UserPage, error) {
	q := url.Values{}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	var users []User
	header, err := c.do(ctx, request{method: http.MethodGet, path: "/users", query: q, protected: true}, &users)
	if err != nil {
		return nil, err
	}
	page := &UserPage{Users: users, Total: int64(len(users))}
	if total, err := strconv.ParseInt(header.Get("X-Total-Count"), 10, 64); err == nil {
		page.Total = total
	}
	return page, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	var out User
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/users/" + url.PathEscape(id), protected: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateUser(ctx context.Context, in CreateUserRequest) (*User, error) {
	var out User
	if _, err := c.do(ctx, request{method: http.MethodPost, path: "/users", body: in, protected: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, in UpdateUserRequest) (*User, error) {
	var out User
	if _, err := c.do(ctx, request{method: http.MethodPatch, path: "/users/" + url.PathEscape(id), body: in, protected: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) (*User, error) {
	var out User
	if _, err := c.do(ctx, request{method: http.MethodDelete, path: "/users/" + url.PathEscape(id), protected: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
