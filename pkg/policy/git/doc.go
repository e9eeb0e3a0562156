// Package git keeps the rule files in a git working copy.
//
// A Repository clones the configured branch on first use and pulls it on
// later syncs. A Syncer polls the repository from the daemon and reloads
// the rule table when a pull changes the rule map or the rule sequence.
// When the new table is rejected the working copy is reset to the last
// accepted commit, so the files on disk always match the active table,
// and the rejected commit is skipped until the branch moves again.
//
//	repo, _ := git.NewRepository(&cfg.Rules.Git, auth)
//	if _, err := repo.Sync(ctx); err != nil {
//		return err
//	}
//	syncer := git.NewSyncer(repo, cfg.Rules.Git.PollInterval,
//		[]string{cfg.Rules.RulesPath}, reload, logger)
//	go syncer.Run(ctx)
package git
