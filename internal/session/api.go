package session

import (
	"context"
	"net/http"

	"github.com/phillip-england/hrsuite/internal/gateway"
)

type gatewayAuth struct {
	gw *gateway.Gateway
}

// NewAuthAPI binds the auth endpoints of the remote API to gw.
func NewAuthAPI(gw *gateway.Gateway) AuthAPI {
	return &gatewayAuth{gw: gw}
}

type loginResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (a *gatewayAuth) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var resp loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := a.gw.Unauthenticated(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: resp.User, AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, nil
}

func (a *gatewayAuth) Register(ctx context.Context, in RegisterInput) error {
	body := map[string]string{
		"name":     in.Name,
		"email":    in.Email,
		"password": in.Password,
		"role":     string(in.Role),
	}
	return a.gw.Unauthenticated(ctx, http.MethodPost, "/api/auth/register", body, nil)
}

// Logout identifies the session by its refresh token only; the access token
// is already gone by the time this is sent.
func (a *gatewayAuth) Logout(ctx context.Context, refreshToken string) error {
	body := map[string]string{"refreshToken": refreshToken}
	return a.gw.Unauthenticated(ctx, http.MethodPost, "/api/auth/logout", body, nil)
}
