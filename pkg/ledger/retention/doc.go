// Package retention prunes old pass reports from the ledger.
//
// Pruning runs in two phases: reports older than RetentionDays are
// removed, then the oldest reports beyond MaxPasses. Marks and the deletion
// database are never pruned.
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    RetentionDays: 90,
//	    MaxPasses:     1000,
//	    PruneSchedule: "0 4 * * *",
//	}, nil)
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
package retention
