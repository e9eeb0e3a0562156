package handle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	resty "github.com/go-resty/resty/v2"
)

// ReplicationClient implements backend.Replicator against a federated
// replication service.
//
//	GET  /replicas?root=<root>&key=<key>   200 {"checksum": "..."} or 404
//	POST /replicas {"root", "key"}         200, 201 or 202
type ReplicationClient struct {
	http   *resty.Client
	logger *slog.Logger
}

type replicaRecord struct {
	Checksum string `json:"checksum"`
}

type replicaRequest struct {
	Root string `json:"root"`
	Key  string `json:"key"`
}

// NewReplicationClient creates a replication service client.
func NewReplicationClient(cfg Config) *ReplicationClient {
	return &ReplicationClient{
		http:   newRestyClient(cfg),
		logger: slog.Default().With("component", "backend.handle.replication"),
	}
}

// Client returns the underlying resty client.
func (c *ReplicationClient) Client() *resty.Client {
	return c.http
}

// ReplicaExists reports whether key is replicated under root.
func (c *ReplicationClient) ReplicaExists(ctx context.Context, key, root, checksum string) (bool, error) {
	var rec replicaRecord
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"root": root, "key": key}).
		SetResult(&rec).
		Get("/replicas")
	if err != nil {
		return false, fmt.Errorf("replica lookup %s in %s: %w", key, root, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return checksum == "" || rec.Checksum == checksum, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, newAPIError(resp)
	}
}

// Replicate requests a copy of key under root.
func (c *ReplicationClient) Replicate(ctx context.Context, key, root string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(replicaRequest{Root: root, Key: key}).
		Post("/replicas")
	if err != nil {
		return fmt.Errorf("replicate %s to %s: %w", key, root, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		c.logger.Info("replication requested", "key", key, "root", root)
		return nil
	default:
		return newAPIError(resp)
	}
}
