package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfflineUUID_Deterministic(t *testing.T) {
	a := OfflineUUID("alice")
	b := OfflineUUID("alice")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, OfflineUUID("bob"))
	assert.Equal(t, uuid.Version(3), a.Version())
	assert.Equal(t, uuid.RFC4122, a.Variant())
}

func TestOfflineUUID_KnownValue(t *testing.T) {
	// md5("OfflinePlayer:Notch") with v3/variant bits, the value every
	// offline-mode server derives for this name.
	assert.Equal(t, "b50ad385-829d-3141-a216-7e7d7539ba7f", OfflineUUID("Notch").String())
}

func TestHasJoined_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "alice", r.URL.Query().Get("username"))
		assert.Equal(t, "-deadbeef", r.URL.Query().Get("serverId"))
		w.Write([]byte(`{
			"id": "3a5e8b2f1c4d4e6f8a9b0c1d2e3f4a5b",
			"name": "alice",
			"properties": [{"name": "textures", "value": "dGVzdA==", "signature": "c2ln"}]
		}`))
	}))
	defer srv.Close()

	profile, err := NewSessionClient(srv.URL).HasJoined(context.Background(), "alice", "-deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "3a5e8b2f-1c4d-4e6f-8a9b-0c1d2e3f4a5b", profile.ID.String())
	assert.Equal(t, "alice", profile.Name)
	require.Len(t, profile.Properties, 1)
	assert.Equal(t, "textures", profile.Properties[0].Name)
	assert.Equal(t, "c2ln", profile.Properties[0].Signature)
}

func TestHasJoined_NotAuthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, err := NewSessionClient(srv.URL).HasJoined(context.Background(), "alice", "hash")
	assert.Error(t, err)
}

func TestHasJoined_NameMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "3a5e8b2f1c4d4e6f8a9b0c1d2e3f4a5b", "name": "mallory"}`))
	}))
	defer srv.Close()

	_, err := NewSessionClient(srv.URL).HasJoined(context.Background(), "alice", "hash")
	assert.Error(t, err)
}
