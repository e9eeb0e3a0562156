// Package security groups the credential handling of callisto.
//
// Subpackage secrets resolves ${secret:name} references in service
// tokens from a secrets directory or the environment.
package security
