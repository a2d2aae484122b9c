// Package pipeline orchestrates a screening run: locate the occurrence file,
// parse it, resolve taxon identity against the registry, and score the unique
// occurrences against per-taxon distribution datasets.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/oceanbio/occurrence-screening/internal/domain"
	"github.com/oceanbio/occurrence-screening/internal/observability"
	"github.com/oceanbio/occurrence-screening/internal/tabular"
)

// ErrNoDataRows marks an occurrence file that parsed but holds no data rows.
var ErrNoDataRows = errors.New("occurrence file has no data rows")

// occurrenceFileRe matches the conventional Darwin Core archive member names,
// e.g. occurrence.csv, Occurrence.txt, occ.tsv.
var occurrenceFileRe = regexp.MustCompile(`(?i)^(occurrence|occ)\.`)

// previewRowCount is how many parsed rows the report echoes back for visual
// inspection.
const previewRowCount = 10

// ReportPublisher forwards a finished report to an external sink.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report *domain.Report) error
}

// Processor runs screenings. Safe for concurrent use; each Run call is an
// independent screening.
type Processor struct {
	resolver   domain.Resolver
	store      domain.DatasetStore
	publisher  ReportPublisher
	logger     *slog.Logger
	metrics    *observability.Metrics
	resolution int
	strict     bool
	scoreFn    domain.ScoreFunc
}

// New creates a Processor. publisher may be nil when no report sink is
// configured. strict selects whether a dataset failure aborts the screening
// or degrades it to unscored occurrences.
func New(resolver domain.Resolver, store domain.DatasetStore, publisher ReportPublisher, logger *slog.Logger, metrics *observability.Metrics, resolution int, strict bool) *Processor {
	return &Processor{
		resolver:   resolver,
		store:      store,
		publisher:  publisher,
		logger:     logger,
		metrics:    metrics,
		resolution: resolution,
		strict:     strict,
		scoreFn:    domain.DefaultScore,
	}
}

// SetScoreFunc replaces the scoring formula. Call before serving traffic.
func (p *Processor) SetScoreFunc(fn domain.ScoreFunc) {
	if fn != nil {
		p.scoreFn = fn
	}
}

// CheckReadiness reports whether the processor has its dependencies wired.
func (p *Processor) CheckReadiness(_ context.Context) error {
	if p.resolver == nil || p.store == nil {
		return errors.New("pipeline dependencies not configured")
	}
	return nil
}

// Run executes one screening over the uploaded files and returns its report.
// A fatal condition (unparseable file, missing mandatory columns, strict-mode
// dataset failure) returns an error and no report; degraded conditions are
// recorded in the report instead.
func (p *Processor) Run(ctx context.Context, files []domain.FileInput) (*domain.Report, error) {
	start := time.Now()
	p.metrics.ScreeningsStarted.Inc()
	p.metrics.ScreeningsInFlight.Inc()
	defer p.metrics.ScreeningsInFlight.Dec()

	report, err := p.run(ctx, files)
	if err != nil {
		p.metrics.ScreeningsFailed.Inc()
		return nil, err
	}

	p.metrics.ScreeningsCompleted.Inc()
	p.metrics.ScreeningDuration.Observe(time.Since(start).Seconds())
	p.publish(ctx, report)
	return report, nil
}

func (p *Processor) run(ctx context.Context, files []domain.FileInput) (*domain.Report, error) {
	report := &domain.Report{ScreeningID: uuid.NewString()}
	logger := p.logger.With("screening_id", report.ScreeningID)

	occFile, ok := findOccurrenceFile(files)
	if !ok {
		logger.Warn("no occurrence file among uploads", "file_count", len(files))
		report.GeneratedAt = domain.Timestamp()
		return report, nil
	}
	report.OccurrenceFileFound = true
	report.OccurrenceFilename = occFile.Filename

	rows, delimiter, err := tabular.Parse(occFile.Content, 0)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", occFile.Filename, err)
	}
	report.DetectedDelimiter = string(delimiter)
	report.RowCount = len(rows)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDataRows, occFile.Filename)
	}
	p.metrics.RowsParsed.Add(float64(len(rows)))

	report.Columns = columnNames(rows[0])
	report.ColumnCount = len(report.Columns)
	report.PreviewRows = rows[:min(previewRowCount, len(rows))]

	if err := domain.ValidateSchema(rows); err != nil {
		return nil, err
	}

	// Rank filtering happens before extraction when the file declares ranks,
	// and after resolution otherwise.
	hasRankColumn := domain.HasColumn(rows, domain.ColTaxonRank)
	working := rows
	if hasRankColumn {
		working = domain.FilterSpeciesRank(rows)
		report.RankFilterApplied = true
	}
	report.FilteredRowCount = len(working)

	records, err := p.resolve(ctx, working, report, logger)
	if err != nil {
		return nil, err
	}

	if !hasRankColumn {
		records = domain.FilterConfirmedSpecies(records)
	}
	report.UniqueOccurrenceCount = len(records)
	p.metrics.OccurrencesExtracted.Add(float64(len(records)))

	stats, err := domain.ScoreOccurrences(ctx, records, p.store, p.resolution, p.scoreFn, p.strict, logger)
	if err != nil {
		return nil, fmt.Errorf("score occurrences: %w", err)
	}
	report.ScoredCount = stats.Scored
	p.observeScoring(stats)

	report.Occurrences = records
	report.GeneratedAt = domain.Timestamp()

	logger.Info("screening complete",
		"filename", report.OccurrenceFilename,
		"rows", report.RowCount,
		"occurrences", report.UniqueOccurrenceCount,
		"scored", report.ScoredCount,
	)
	return report, nil
}

// resolve extracts occurrence records and resolves their taxon identity. The
// path depends on the file schema: identifiers are normalized through the
// registry when present, otherwise names are matched to synthesize them.
func (p *Processor) resolve(ctx context.Context, rows []domain.ParsedRow, report *domain.Report, logger *slog.Logger) ([]*domain.OccurrenceRecord, error) {
	if domain.HasColumn(rows, domain.ColScientificNameID) {
		records, err := domain.Extract(rows, nil)
		if err != nil {
			return nil, err
		}
		ids := domain.DistinctTaxonIDs(records)
		lookup, err := p.resolver.NormalizeIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("normalize taxon ids: %w", err)
		}
		report.NormalizedCount = domain.ApplyTaxonRecords(records, lookup)
		logger.Info("taxon ids normalized", "distinct_ids", len(ids), "normalized", report.NormalizedCount)
		return records, nil
	}

	report.NameMatchingUsed = true
	names := domain.DistinctNames(rows)
	matches, err := p.resolver.MatchNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("match scientific names: %w", err)
	}
	report.UnmatchedNames = len(names) - len(matches)
	p.metrics.UnmatchedNames.Add(float64(report.UnmatchedNames))
	logger.Info("scientific names matched",
		"distinct_names", len(names),
		"matched", len(matches),
		"unmatched", report.UnmatchedNames,
	)
	return domain.Extract(rows, matches)
}

func (p *Processor) observeScoring(stats domain.ScoreStats) {
	p.metrics.OccurrencesScored.Add(float64(stats.Scored))
	p.metrics.DatasetLookups.WithLabelValues("hit").Add(float64(stats.Scored))
	p.metrics.DatasetLookups.WithLabelValues("miss").Add(float64(stats.CellMiss))
	p.metrics.DatasetLookups.WithLabelValues("absent").Add(float64(stats.NoDataset))
	p.metrics.DatasetLookups.WithLabelValues("error").Add(float64(stats.Failures))
}

// publish forwards the report to the configured sink. Publishing is best
// effort: the caller already has the report, so a sink failure is logged and
// otherwise ignored.
func (p *Processor) publish(ctx context.Context, report *domain.Report) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishReport(ctx, report); err != nil {
		p.logger.Warn("report publish failed",
			"screening_id", report.ScreeningID,
			"error", err,
		)
	}
}

// findOccurrenceFile picks the first upload whose name follows the Darwin
// Core occurrence naming convention.
func findOccurrenceFile(files []domain.FileInput) (domain.FileInput, bool) {
	for _, f := range files {
		if occurrenceFileRe.MatchString(f.Filename) {
			return f, true
		}
	}
	return domain.FileInput{}, false
}

func columnNames(row domain.ParsedRow) []string {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
