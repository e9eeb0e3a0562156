// Package catalog implements backend.Catalog on SQLite.
//
// Documents are keyed by (kind, file, segment) and their bodies are stored
// as JSON text. Put replaces every document of a file for a kind in one
// transaction, so readers never see a mix of old and new segments.
package catalog
