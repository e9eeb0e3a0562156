package actions

import (
	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/quality"
)

// builtin lists the actions of the default registry.
var builtin = []Spec{
	{Name: "pruneRule", Class: Mutating, Requires: []backend.Capability{backend.CapArchive, backend.CapRepack}, Produces: quality.Pruned, New: newPrune},
	{Name: "ingestionS3Rule", Class: External, Requires: []backend.Capability{backend.CapArchive, backend.CapObjectStore}, New: newIngest},
	{Name: "ingestionIrodsRule", Class: External, Requires: []backend.Capability{backend.CapArchive, backend.CapObjectStore}, New: newResourceIngest},
	{Name: "federatedIngestionRule", Class: External, Requires: []backend.Capability{backend.CapArchive, backend.CapObjectStore}, New: newFederatedIngest},
	{Name: "deleteArchiveRule", Class: Destructive, Requires: []backend.Capability{backend.CapObjectStore}, New: newDeleteArchive},
	{Name: "pidRule", Class: External, Requires: []backend.Capability{backend.CapArchive, backend.CapPID}, New: newPID},
	{Name: "addPidToWFCatalogRule", Class: External, Requires: []backend.Capability{backend.CapPID, backend.CapCatalog}, New: newAddPIDToCatalog},
	{Name: "replicationRule", Class: External, Requires: []backend.Capability{backend.CapArchive, backend.CapReplication}, New: newReplication},
	{Name: "waveformMetadataRule", Class: External, Requires: []backend.Capability{backend.CapArchive, backend.CapCatalog, backend.CapMetadata}, New: newWaveformMetadata},
	{Name: "deleteWaveformMetadataRule", Class: External, Requires: []backend.Capability{backend.CapCatalog}, New: deleteMetadata(backend.KindWaveform)},
	{Name: "dcMetadataRule", Class: External, Requires: []backend.Capability{backend.CapArchive, backend.CapCatalog, backend.CapMetadata, backend.CapPID}, New: newDublinCore},
	{Name: "deleteDCMetadataRule", Class: External, Requires: []backend.Capability{backend.CapCatalog}, New: deleteMetadata(backend.KindDublinCore)},
	{Name: "ppsdMetadataRule", Class: External, Requires: []backend.Capability{backend.CapArchive, backend.CapCatalog, backend.CapPSD}, New: newPPSD},
	{Name: "deletePPSDMetadataRule", Class: External, Requires: []backend.Capability{backend.CapCatalog}, New: deleteMetadata(backend.KindPPSD)},
	{Name: "purgeRule", Class: Destructive, Requires: []backend.Capability{backend.CapArchive}, Produces: quality.Purged, New: newPurge},
	{Name: "quarantineRawFileRule", Class: Destructive, Requires: []backend.Capability{backend.CapArchive}, Produces: quality.Quarantined, New: newQuarantineRaw},
	{Name: "quarantinePrunedFileRule", Class: Destructive, Requires: []backend.Capability{backend.CapArchive}, Produces: quality.Quarantined, New: newQuarantinePruned},
	{Name: "removeFromDeletionDatabaseRule", Class: External, Requires: []backend.Capability{backend.CapDeletions}, New: newRemoveFromDeletions},
	{Name: "printWithMessage", Class: External, New: newPrintWithMessage},
	{Name: "testPrint", Class: External, New: newTestPrint},
}

var aliases = map[string]string{
	"ingestionObjectStoreRule": "ingestionS3Rule",
}

// Default returns a registry holding the built-in actions.
func Default() *Registry {
	r := NewRegistry()
	for _, spec := range builtin {
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}
	for alias, name := range aliases {
		if err := r.Alias(alias, name); err != nil {
			panic(err)
		}
	}
	return r
}
