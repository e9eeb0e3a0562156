// Package logging builds the structured loggers used by callisto.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - JSON and text output at a configurable level
//   - Pass, file and rule fields taken from the record context
//   - Optional masking of credentials in backend URLs and headers
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithPassID(ctx, passID)
//	ctx = logging.WithFile(ctx, "NL.HGN.02.BHZ.D.2024.001")
//	slog.InfoContext(ctx, "rule applied")  // includes pass_id and file
package logging
