// Package mocks provides in-memory backends for tests.
package mocks
