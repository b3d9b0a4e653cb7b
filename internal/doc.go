// Package internal provides the linting engine behind dlin.
//
// Engine: applies the rule catalog to a parsed Dockerfile. It applies the
// user's severity configuration, honors `# nolint` comments, runs every rule
// isolated from the others and orders the resulting issues by line.
//
// Cache: stores per-file results on disk so unchanged Dockerfiles are not
// linted again.
//
// Watcher: re-lints Dockerfiles when they change.
//
// Usage:
//
//	engine, err := internal.NewEngine(logger, cfg.Rules, cfg.Optimizer.Disable)
//	if err != nil {
//	    // handle error
//	}
//
//	issues, err := engine.Run("path/to/Dockerfile")
//	if err != nil {
//	    // handle error
//	}
//
//	for _, issue := range issues {
//	    fmt.Println(issue)
//	}
//
// This package is intended for internal use within the linting tool and should not be
// imported by external packages.
package internal
