package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/amanbib/internal/config"
	amerrors "github.com/Aman-CERP/amanbib/internal/errors"
	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/internal/pdf"
	"github.com/Aman-CERP/amanbib/internal/store"
)

// maxMissingListed caps how many unresolved links are named in details.
const maxMissingListed = 5

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check for the library at libraryPath. extraConfig is
// an optional config file applied after user and project config.
func (c *Checker) RunAll(ctx context.Context, libraryPath, extraConfig string) []CheckResult {
	dir := filepath.Dir(libraryPath)

	lib, libResult := c.CheckLibrary(libraryPath)
	cfg, cfgResult := c.CheckConfig(dir, extraConfig)
	results := []CheckResult{libResult, cfgResult}

	if cfg == nil {
		return results
	}
	var pdfs int
	if lib != nil {
		for _, e := range lib.Entries() {
			pdfs += len(pdf.LocalPDFs(e, cfg.Index.FileField))
		}
	}
	results = append(results, c.CheckDiskSpace(libraryPath, cfg, pdfs))
	results = append(results, c.CheckFileDescriptors(cfg.Index.Workers))

	indexPath := cfg.IndexPathFor(libraryPath)
	results = append(results, c.CheckWritePermissions(writableDir(indexPath, dir)))
	results = append(results, c.CheckIndexLock(indexPath))
	if lib != nil {
		results = append(results, c.CheckLinkedFiles(ctx, lib, cfg))
	}
	return results
}

// writableDir returns the closest existing directory that will hold the
// index, falling back to the library directory.
func writableDir(indexPath, libraryDir string) string {
	if indexPath == "" {
		return libraryDir
	}
	for dir := filepath.Dir(indexPath); ; dir = filepath.Dir(dir) {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return dir
		}
		if parent := filepath.Dir(dir); parent == dir {
			return libraryDir
		}
	}
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "amanbib doctor")
	_, _ = fmt.Fprintln(c.output, "==============")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			for _, line := range strings.Split(r.Details, "\n") {
				_, _ = fmt.Fprintf(c.output, "      %s\n", line)
			}
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errs []string
	for _, r := range results {
		if r.IsCritical() {
			errs = append(errs, r.Name+": "+r.Message)
		} else if r.Status != StatusPass {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errs) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errs))
		for _, e := range errs {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}

// CheckLibrary loads the library file. The library is nil when the check
// fails.
func (c *Checker) CheckLibrary(path string) (*model.Library, CheckResult) {
	result := CheckResult{
		Name:     "library",
		Required: true,
	}

	lib, err := model.LoadLibrary(path)
	if err != nil {
		result.Status = StatusFail
		if errors.Is(err, fs.ErrNotExist) {
			result.Message = "not found: " + path
			result.Details = "Pass --library or set AMANBIB_LIBRARY"
		} else {
			result.Message = err.Error()
		}
		return nil, result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d entries in %s", lib.Len(), lib.Name())
	return lib, result
}

// CheckConfig loads and validates the configuration for a library in dir.
func (c *Checker) CheckConfig(dir, extra string) (*config.Config, CheckResult) {
	result := CheckResult{
		Name:     "config",
		Required: true,
	}

	cfg, err := config.Load(dir, extra)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		result.Details = "Run 'amanbib config path' to find the files in use"
		return nil, result
	}

	result.Status = StatusPass
	result.Message = "OK"
	if path := config.ProjectConfigPath(dir); fileExists(path) {
		result.Details = "project config: " + path
	}
	return cfg, result
}

// CheckWritePermissions checks if the index directory can be written.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	f, err := os.CreateTemp(path, ".amanbib-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	result.Status = StatusPass
	result.Message = "OK: " + path
	return result
}

// CheckIndexLock reports whether another process holds the index writer
// lock. An in-memory index has no lock.
func (c *Checker) CheckIndexLock(indexPath string) CheckResult {
	result := CheckResult{
		Name: "index_lock",
	}

	if indexPath == "" {
		result.Status = StatusPass
		result.Message = "in-memory index"
		return result
	}
	if !fileExists(filepath.Clean(indexPath) + ".lock") {
		result.Status = StatusPass
		result.Message = "not locked"
		return result
	}

	lock := store.NewWriterLock(indexPath)
	defer func() {
		if lock.IsLocked() {
			_ = lock.Unlock()
		}
	}()
	if err := lock.TryLock(); err != nil {
		result.Status = StatusWarn
		if amerrors.GetCode(err) == amerrors.ErrCodeIndexLocked {
			result.Message = "in use by another process"
			result.Details = "Searches from this process will fail until it exits"
		} else {
			result.Message = err.Error()
		}
		return result
	}

	result.Status = StatusPass
	result.Message = "not locked"
	return result
}

// CheckLinkedFiles counts linked PDFs that do not resolve to a file.
// Unresolved files are skipped during indexing, so this only warns.
func (c *Checker) CheckLinkedFiles(ctx context.Context, lib *model.Library, cfg *config.Config) CheckResult {
	result := CheckResult{
		Name: "linked_files",
	}

	resolver := model.FileResolver{BaseDir: lib.BaseDir(), Dirs: cfg.Index.FileDirectories}
	var (
		total   int
		missing []string
	)
	for _, e := range lib.Entries() {
		if err := ctx.Err(); err != nil {
			result.Status = StatusWarn
			result.Message = "check canceled"
			return result
		}
		for _, f := range pdf.LocalPDFs(e, cfg.Index.FileField) {
			total++
			if _, ok := resolver.Resolve(f); !ok {
				missing = append(missing, e.ID+": "+f.Link)
			}
		}
	}

	switch {
	case !cfg.Index.IndexPDFs:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d linked PDFs, PDF indexing disabled", total)
	case len(missing) == 0:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d linked PDFs found", total)
	default:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d of %d linked PDFs not found", len(missing), total)
		result.Details = strings.Join(missing[:min(len(missing), maxMissingListed)], "\n")
		if len(missing) > maxMissingListed {
			result.Details += fmt.Sprintf("\n... and %d more", len(missing)-maxMissingListed)
		}
	}
	return result
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
