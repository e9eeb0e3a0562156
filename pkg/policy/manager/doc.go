// Package manager keeps the rule engine supplied with the current rule
// table.
//
// RuleManager loads the rule map and the optional rule sequence through a
// ruleset.Loader and hands every new table to a Reloader, normally the
// engine. FileWatcher watches the directories of both files with fsnotify
// and debounces bursts of events into one reload.
//
// A table that fails to load or compile never replaces the active one:
//
//	mgr, err := manager.NewRuleManager(&manager.Config{
//	    RulesPath:    "rules.json",
//	    SequencePath: "sequence.json",
//	    Watch:        true,
//	}, loader, eng, logger)
//	if err != nil {
//	    return err
//	}
//	go mgr.Watch(ctx)
//
// Passes already running keep the table they started with.
package manager
