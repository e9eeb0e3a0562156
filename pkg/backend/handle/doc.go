// Package handle provides HTTP clients for the persistent identifier
// (handle) service and the federated replication service.
//
// Both clients are built on go-resty with retries for transient statuses
// (408, 429, 5xx). A 404 on a lookup is an answer, not an error: the PID or
// replica does not exist.
package handle
