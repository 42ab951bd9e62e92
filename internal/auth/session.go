package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionURL is the public session service endpoint.
const DefaultSessionURL = "https://sessionserver.mojang.com/session/minecraft/hasJoined"

// Property is one signed profile attribute (skin, cape, ...). Relayed
// verbatim to clients in LOGIN_SUCCESS and PLAYER_LIST_ITEM.
type Property struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

// Profile is the authenticated identity the session service vouches for.
type Profile struct {
	ID         uuid.UUID
	Name       string
	Properties []Property
}

// SessionClient performs the single outbound hasJoined lookup of online-mode
// login.
type SessionClient struct {
	baseURL string
	http    *http.Client
}

// NewSessionClient creates a client against baseURL (DefaultSessionURL for
// the real service; tests point it at a local server).
func NewSessionClient(baseURL string) *SessionClient {
	return &SessionClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type hasJoinedResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Properties []Property `json:"properties"`
}

// HasJoined asks the session service whether username completed the
// client-side join for serverHash. A non-200 response is an auth failure.
func (c *SessionClient) HasJoined(ctx context.Context, username, serverHash string) (*Profile, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("serverId", serverHash)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building session request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session service returned %d for %q", resp.StatusCode, username)
	}

	var body hasJoinedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding session response: %w", err)
	}

	id, err := uuid.Parse(body.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing profile uuid %q: %w", body.ID, err)
	}
	if body.Name != username {
		return nil, fmt.Errorf("session service profile mismatch: asked %q, got %q", username, body.Name)
	}

	return &Profile{ID: id, Name: body.Name, Properties: body.Properties}, nil
}
