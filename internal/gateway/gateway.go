// Package gateway sends requests to the remote HR API on behalf of the
// current browser session.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/phillip-england/hrsuite/internal/apperr"
)

// CredentialSource yields the bearer credential to attach. It is consulted
// on every call, never cached.
type CredentialSource interface {
	Credential() string
}

type Gateway struct {
	baseURL string
	client  *http.Client
	creds   CredentialSource
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func New(baseURL string, client *http.Client, creds CredentialSource) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		creds:   creds,
	}
}

// BaseURL is the API root every path is resolved against.
func (g *Gateway) BaseURL() string { return g.baseURL }

// Do sends an authenticated request when a credential is present and an
// anonymous one otherwise. A non-nil out receives the response's data field.
func (g *Gateway) Do(ctx context.Context, method, path string, body, out any) error {
	credential := ""
	if g.creds != nil {
		credential = g.creds.Credential()
	}
	return g.send(ctx, method, path, credential, body, out)
}

// Unauthenticated sends the request without any credential, even when the
// session holds one.
func (g *Gateway) Unauthenticated(ctx context.Context, method, path string, body, out any) error {
	return g.send(ctx, method, path, "", body, out)
}

func (g *Gateway) send(ctx context.Context, method, path, credential string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return apperr.Network(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return apperr.Network(err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		return apperr.FromStatus(resp.StatusCode, msg)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, decodeErr)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}
