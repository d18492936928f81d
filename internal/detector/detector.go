package detector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"kestrel/internal/blocklist"
	"kestrel/internal/database"

	"github.com/charmbracelet/log"
)

const (
	HeuristicHighFrequency  = "high_frequency"
	HeuristicSensitivePaths = "sensitive_paths"
	HeuristicScanning       = "scanning"

	maxFlaggedPaths = 10
)

// Settings carries the detector's tunables explicitly, so runs are
// deterministic under test without touching global configuration.
type Settings struct {
	// Window is the trailing range analysed by each run.
	Window time.Duration

	// HighFrequencyThreshold flags addresses with strictly more requests.
	HighFrequencyThreshold int

	// SensitivePaths are substring needles matched against request paths.
	SensitivePaths []string

	// NotFoundThreshold flags addresses with strictly more 404 responses.
	NotFoundThreshold int

	// AutoBlock promotes flagged addresses whose evidence count exceeds
	// AutoBlockThreshold straight onto the block list.
	AutoBlock          bool
	AutoBlockThreshold int
}

// HeuristicFailure names a heuristic that errored during a run.
type HeuristicFailure struct {
	Heuristic string
	Err       error
}

// Report summarises one detector run. A run can partially succeed: failed
// heuristics are listed and the surviving candidates are still applied.
type Report struct {
	WindowStart time.Time
	WindowEnd   time.Time

	Flagged   []string
	Promoted  []string
	Completed []string
	Failures  []HeuristicFailure

	// ScanningSkipped is set when the window held no response-status data,
	// which disables the scanning heuristic without failing the run.
	ScanningSkipped bool
}

type candidate struct {
	ip           string
	reason       string
	count        int
	flaggedPaths []string
}

type Detector struct {
	settings Settings

	// now is swapped in tests for deterministic first/last detection stamps.
	now func() time.Time
}

func New(settings Settings) *Detector {
	if settings.Window <= 0 {
		settings.Window = time.Hour
	}
	return &Detector{
		settings: settings,
		now:      time.Now,
	}
}

// Run analyses [windowEnd - window, windowEnd) and upserts every candidate
// into the suspicious registry. Re-running the same window produces the same
// end-state. The returned error is non-nil only when the run as a whole could
// not proceed (cancellation, or every heuristic failing); individual
// heuristic faults are isolated into the report.
func (d *Detector) Run(ctx context.Context, windowEnd time.Time) (*Report, error) {
	windowStart := windowEnd.Add(-d.settings.Window)
	report := &Report{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}

	candidates := make(map[string]*candidate)

	d.runHighFrequency(ctx, windowStart, windowEnd, candidates, report)
	d.runSensitivePaths(ctx, windowStart, windowEnd, candidates, report)
	d.runScanning(ctx, windowStart, windowEnd, candidates, report)

	if len(report.Completed) == 0 && len(report.Failures) > 0 {
		return report, fmt.Errorf("detector: all heuristics failed: %v", report.Failures[0].Err)
	}

	if err := d.apply(ctx, candidates, report); err != nil {
		return report, err
	}

	sort.Strings(report.Flagged)
	return report, nil
}

func (d *Detector) runHighFrequency(ctx context.Context, start, end time.Time, candidates map[string]*candidate, report *Report) {
	counts, err := database.CountRequestsPerIP(ctx, start, end, d.settings.HighFrequencyThreshold)
	if err != nil {
		report.Failures = append(report.Failures, HeuristicFailure{Heuristic: HeuristicHighFrequency, Err: err})
		log.Warn("Heuristic failed", "heuristic", HeuristicHighFrequency, "error", err)
		return
	}

	for _, row := range counts {
		reason := fmt.Sprintf("High request frequency: %d requests within the analysis window", row.Count)
		merge(candidates, row.IP, reason, row.Count, nil)
	}
	report.Completed = append(report.Completed, HeuristicHighFrequency)
}

func (d *Detector) runSensitivePaths(ctx context.Context, start, end time.Time, candidates map[string]*candidate, report *Report) {
	hits, err := database.FindSensitivePathHits(ctx, start, end, d.settings.SensitivePaths)
	if err != nil {
		report.Failures = append(report.Failures, HeuristicFailure{Heuristic: HeuristicSensitivePaths, Err: err})
		log.Warn("Heuristic failed", "heuristic", HeuristicSensitivePaths, "error", err)
		return
	}

	type pathEvidence struct {
		count int
		paths []string
		seen  map[string]struct{}
	}

	perIP := make(map[string]*pathEvidence)
	for _, hit := range hits {
		evidence := perIP[hit.IP]
		if evidence == nil {
			evidence = &pathEvidence{seen: make(map[string]struct{})}
			perIP[hit.IP] = evidence
		}
		evidence.count++
		if _, dup := evidence.seen[hit.Path]; !dup && len(evidence.paths) < maxFlaggedPaths {
			evidence.seen[hit.Path] = struct{}{}
			evidence.paths = append(evidence.paths, hit.Path)
		}
	}

	for ip, evidence := range perIP {
		sort.Strings(evidence.paths)
		reason := fmt.Sprintf("Accessed sensitive paths: %s", strings.Join(evidence.paths, ", "))
		merge(candidates, ip, reason, evidence.count, evidence.paths)
	}
	report.Completed = append(report.Completed, HeuristicSensitivePaths)
}

func (d *Detector) runScanning(ctx context.Context, start, end time.Time, candidates map[string]*candidate, report *Report) {
	counts, withStatus, err := database.CountNotFoundPerIP(ctx, start, end, d.settings.NotFoundThreshold)
	if err != nil {
		report.Failures = append(report.Failures, HeuristicFailure{Heuristic: HeuristicScanning, Err: err})
		log.Warn("Heuristic failed", "heuristic", HeuristicScanning, "error", err)
		return
	}

	if withStatus == 0 {
		// No response-status enrichment in this window; nothing to judge.
		report.ScanningSkipped = true
		report.Completed = append(report.Completed, HeuristicScanning)
		return
	}

	for _, row := range counts {
		reason := fmt.Sprintf("Scanning behavior: %d not-found responses within the analysis window", row.Count)
		merge(candidates, row.IP, reason, row.Count, nil)
	}
	report.Completed = append(report.Completed, HeuristicScanning)
}

// merge keeps the most severe (highest count) reason per address while
// accumulating flagged paths from every heuristic that contributed.
func merge(candidates map[string]*candidate, ip, reason string, count int, paths []string) {
	existing := candidates[ip]
	if existing == nil {
		candidates[ip] = &candidate{
			ip:           ip,
			reason:       reason,
			count:        count,
			flaggedPaths: append([]string(nil), paths...),
		}
		return
	}

	if count > existing.count {
		existing.count = count
		existing.reason = reason
	}
	existing.flaggedPaths = append(existing.flaggedPaths, paths...)
}

func (d *Detector) apply(ctx context.Context, candidates map[string]*candidate, report *Report) error {
	now := d.now()

	for _, cand := range candidates {
		// Partial progress is valid: already-applied upserts stay in place.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		country, city, err := database.LatestLocation(ctx, cand.ip)
		if err != nil {
			log.Warn("Could not enrich suspicious entry with location", "ip", cand.ip, "error", err)
		}

		update := database.SuspiciousUpdate{
			IP:           cand.ip,
			Reason:       cand.reason,
			RequestCount: cand.count,
			Country:      country,
			City:         city,
			FlaggedPaths: cand.flaggedPaths,
		}
		if err := database.UpsertSuspiciousIP(ctx, update, now); err != nil {
			log.Error("Suspicious registry upsert failed", "ip", cand.ip, "error", err)
			continue
		}
		report.Flagged = append(report.Flagged, cand.ip)

		if d.settings.AutoBlock && cand.count > d.settings.AutoBlockThreshold {
			created, err := blocklist.Promote(ctx, cand.ip)
			if err != nil {
				log.Error("Auto-block promotion failed", "ip", cand.ip, "error", err)
				continue
			}
			if created {
				report.Promoted = append(report.Promoted, cand.ip)
			}
		}
	}

	return nil
}
