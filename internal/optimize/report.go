package optimize

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// FileReport is the outcome for one candidate file.
type FileReport struct {
	Rel          string
	OriginalSize int64
	// OutputPath is the mirrored artifact path under the output root.
	OutputPath    string
	OutputExists  bool
	OptimizedSize int64
	// Backend produced the output; empty when none did.
	Backend  string
	Attempts []Attempt
	Err      error

	WebPPath    string
	WebPSize    int64
	WebPBackend string
	WebPErr     error
}

// Report accumulates the results of one run.
type Report struct {
	Root       string
	OutputRoot string
	Entries    []FileReport
	Findings   []AuditFinding

	// Totals cover only entries whose output exists.
	OriginalTotal  int64
	OptimizedTotal int64
	WebPCount      int
	Failed         int
	Backends       map[string]int

	mu sync.Mutex
}

func newReport(root, outputRoot string, files int) *Report {
	return &Report{
		Root:       root,
		OutputRoot: outputRoot,
		Entries:    make([]FileReport, files),
		Backends:   make(map[string]int),
	}
}

// Files is the number of candidate files seen.
func (r *Report) Files() int {
	return len(r.Entries)
}

func (r *Report) set(i int, entry FileReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries[i] = entry
}

func (r *Report) finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.Entries {
		if e.OutputExists {
			r.OriginalTotal += e.OriginalSize
			r.OptimizedTotal += e.OptimizedSize
			r.Backends[e.Backend]++
		} else {
			r.Failed++
		}
		if e.WebPBackend != "" {
			r.WebPCount++
		}
	}
}

// WriteSummary prints the boxed end-of-run summary.
func (r *Report) WriteSummary(w io.Writer) error {
	rule := strings.Repeat("=", 50)
	saved := r.OriginalTotal - r.OptimizedTotal

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\nOPTIMIZATION SUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Original total size: %s\n", FormatBytes(r.OriginalTotal))
	fmt.Fprintf(&b, "Optimized total size: %s\n", FormatBytes(r.OptimizedTotal))
	fmt.Fprintf(&b, "Total savings: %s (%s bytes, %s)\n",
		FormatBytes(saved), humanize.Comma(saved), FormatSavings(r.OriginalTotal, r.OptimizedTotal))
	fmt.Fprintf(&b, "Files processed: %d\n", r.Files())
	fmt.Fprintf(&b, "WebP files generated: %d\n", r.WebPCount)
	if len(r.Backends) > 0 {
		var parts []string
		for _, name := range slices.Sorted(maps.Keys(r.Backends)) {
			parts = append(parts, fmt.Sprintf("%s=%d", name, r.Backends[name]))
		}
		fmt.Fprintf(&b, "Backends: %s\n", strings.Join(parts, " "))
	}
	if r.Failed > 0 {
		fmt.Fprintf(&b, "Failed: %d\n", r.Failed)
	}
	if len(r.Findings) > 0 {
		fmt.Fprintf(&b, "Files with GPS metadata: %d\n", len(r.Findings))
	}
	fmt.Fprintf(&b, "%s\n", rule)

	_, err := io.WriteString(w, b.String())
	return err
}
