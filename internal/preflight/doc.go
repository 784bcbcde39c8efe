// Package preflight diagnoses a library before it is indexed.
//
// The checks cover the library file and its configuration, free disk
// space and file descriptor limits, write access to the index directory,
// the cross-process index lock, and linked PDFs that cannot be found.
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunAll(ctx, "/path/to/library.yaml", "")
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
