// Package backend defines the external systems the rule engine talks to.
//
// Each backend is a narrow interface: the object store, the metadata
// catalog, the persistent identifier registry, the replication service,
// the repacker, and the metadata extractors. Env bundles the configured
// implementations; a nil field means the backend is not available and any
// rule that needs it is rejected when the rule table is loaded.
//
// Implementations live in the sub packages:
//
//   - objectstore: gocloud.dev/blob buckets (file, mem, s3)
//   - catalog: SQLite document store
//   - handle: HTTP clients for the handle and replication services
//   - repack: dataselect and msrepack runner
//   - metadata: waveform and Dublin Core document builders
package backend
