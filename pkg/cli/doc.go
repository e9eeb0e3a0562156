/*
Package cli provides command-line interface utilities for callisto.

Output Formatting:

Command results are rendered as text, JSON or CSV:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, passes); err != nil {
		return err
	}

Results implementing Tabular render as aligned columns in text and as
rows in CSV.

Exit Status:

Commands return errors; main maps them to a process status with ExitCode.
Configuration errors exit with ExitConfig (2), a pass stopped by an
exitOnFailure rule exits with ExitFatal (1).

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
