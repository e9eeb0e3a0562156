package handle

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
)

const (
	baseURL = "https://handle.test/api"
	key     = "2024/NL/HGN/BHZ.Q/NL.HGN.02.BHZ.Q.2024.041"
)

func newMockedPIDClient(t *testing.T) (*PIDClient, *httpmock.MockTransport) {
	t.Helper()
	c := NewPIDClient(Config{BaseURL: baseURL, RetryCount: -1})
	mock := httpmock.NewMockTransport()
	c.Client().SetTransport(mock)
	return c, mock
}

func TestPIDClient_Lookup(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		wantPID   string
		wantFound bool
		wantErr   bool
	}{
		{
			name:      "found",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]string{"pid": "21.T11/abc"}),
			wantPID:   "21.T11/abc",
			wantFound: true,
		},
		{
			name:      "not found",
			responder: httpmock.NewStringResponder(http.StatusNotFound, ""),
		},
		{
			name:      "server error",
			responder: httpmock.NewStringResponder(http.StatusInternalServerError, "boom"),
			wantErr:   true,
		},
		{
			name:      "transport error",
			responder: httpmock.NewErrorResponder(errors.New("network error")),
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mock := newMockedPIDClient(t)
			mock.RegisterResponderWithQuery("GET", baseURL+"/pids", map[string]string{"url": key}, tt.responder)

			pid, found, err := c.Lookup(context.Background(), key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Lookup() error = %v, wantErr %v", err, tt.wantErr)
			}
			if pid != tt.wantPID || found != tt.wantFound {
				t.Errorf("Lookup() = %q, %v; want %q, %v", pid, found, tt.wantPID, tt.wantFound)
			}
		})
	}
}

func TestPIDClient_LookupAPIError(t *testing.T) {
	c, mock := newMockedPIDClient(t)
	mock.RegisterResponder("GET", "=~/pids", httpmock.NewStringResponder(http.StatusForbidden, "denied"))

	_, _, err := c.Lookup(context.Background(), key)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Errorf("Lookup() error = %v, want *APIError with 403", err)
	}
}

func TestPIDClient_Assign(t *testing.T) {
	t.Run("creates", func(t *testing.T) {
		c, mock := newMockedPIDClient(t)
		mock.RegisterResponder("GET", "=~/pids", httpmock.NewStringResponder(http.StatusNotFound, ""))
		mock.RegisterResponder("POST", baseURL+"/pids", httpmock.NewJsonResponderOrPanic(http.StatusCreated, map[string]string{"pid": "21.T11/new"}))

		pid, err := c.Assign(context.Background(), key, "sha2:abc")
		if err != nil {
			t.Fatalf("Assign() error = %v", err)
		}
		if pid != "21.T11/new" {
			t.Errorf("Assign() = %q", pid)
		}
		if n := mock.GetCallCountInfo()["POST "+baseURL+"/pids"]; n != 1 {
			t.Errorf("POST called %d times, want 1", n)
		}
	})

	t.Run("existing pid is reused", func(t *testing.T) {
		c, mock := newMockedPIDClient(t)
		mock.RegisterResponder("GET", "=~/pids", httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]string{"pid": "21.T11/old"}))
		mock.RegisterResponder("POST", baseURL+"/pids", httpmock.NewStringResponder(http.StatusInternalServerError, ""))

		pid, err := c.Assign(context.Background(), key, "sha2:abc")
		if err != nil || pid != "21.T11/old" {
			t.Fatalf("Assign() = %q, %v", pid, err)
		}
		if n := mock.GetCallCountInfo()["POST "+baseURL+"/pids"]; n != 0 {
			t.Errorf("POST called %d times, want 0", n)
		}
	})
}

func TestReplicationClient(t *testing.T) {
	c := NewReplicationClient(Config{BaseURL: baseURL, RetryCount: -1, Token: "secret"})
	mock := httpmock.NewMockTransport()
	c.Client().SetTransport(mock)

	mock.RegisterResponderWithQuery("GET", baseURL+"/replicas",
		map[string]string{"root": "/eudat/replica", "key": key},
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]string{"checksum": "sha2:abc"}))
	mock.RegisterResponderWithQuery("GET", baseURL+"/replicas",
		map[string]string{"root": "/other", "key": key},
		httpmock.NewStringResponder(http.StatusNotFound, ""))
	mock.RegisterResponder("POST", baseURL+"/replicas", func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer secret" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
	})

	ctx := context.Background()
	tests := []struct {
		name     string
		root     string
		checksum string
		want     bool
	}{
		{"present", "/eudat/replica", "", true},
		{"checksum match", "/eudat/replica", "sha2:abc", true},
		{"checksum mismatch", "/eudat/replica", "sha2:zzz", false},
		{"missing", "/other", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ReplicaExists(ctx, key, tt.root, tt.checksum)
			if err != nil {
				t.Fatalf("ReplicaExists() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ReplicaExists() = %v, want %v", got, tt.want)
			}
		})
	}

	if err := c.Replicate(ctx, key, "/eudat/replica"); err != nil {
		t.Errorf("Replicate() error = %v", err)
	}
}
