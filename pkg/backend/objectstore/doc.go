// Package objectstore implements backend.ObjectStore with gocloud.dev/blob.
//
// The checksum of each uploaded file is stored in the object metadata under
// the "sha256" key, so that existence checks can verify content without
// downloading the object.
package objectstore
