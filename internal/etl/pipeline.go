package etl

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/termveil/termveil/internal/rules"
)

// Pipeline imports rule datasets into a rules file. Input rows are
// (original, alias, category) triples from CSV, Parquet or JSON-lines
// sources; the output is a merged rules document with the existing rules
// first and imported rules appended in dataset order.
type Pipeline struct {
	config *Config
	logger *zap.Logger

	existing *rules.RuleSet
	seen     map[string]bool
	imported []rules.Rule
}

// NewPipeline creates an importer over the currently loaded rule set.
// existing may be nil when importing into a fresh workspace.
func NewPipeline(existing *rules.RuleSet, config *Config, logger *zap.Logger) *Pipeline {
	p := &Pipeline{
		config:   config,
		logger:   logger,
		existing: existing,
		seen:     make(map[string]bool),
	}

	if existing != nil {
		for _, r := range existing.All() {
			p.seen[strings.ToLower(r.Original)] = true
			p.seen[strings.ToLower(r.Alias)] = true
		}
	}

	return p
}

// ProcessFile imports one dataset file and, unless configured otherwise,
// writes the merged rules document to outputPath.
func (p *Pipeline) ProcessFile(ctx context.Context, filePath, outputPath string) (*ProcessingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	p.logger.Info("Starting rules import",
		zap.String("file", filePath),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Bool("validate_only", p.config.ValidateOnly),
		zap.Bool("dry_run", p.config.DryRun))

	start := time.Now()
	result := &ProcessingResult{}

	format := DetectFileFormat(filePath)
	p.logger.Info("Detected file format", zap.String("format", string(format)))

	var err error
	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, filePath, result)
	case FormatParquet:
		err = p.processParquet(ctx, filePath, result)
	case FormatJSON:
		err = p.processJSON(ctx, filePath, result)
	default:
		return result, fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	result.Duration = time.Since(start)

	if !p.config.ValidateOnly && !p.config.DryRun {
		if err := p.writeMerged(outputPath); err != nil {
			return result, fmt.Errorf("failed to write merged rules: %w", err)
		}
		result.Merged = int64(len(p.imported))
	}

	p.logger.Info("Rules import completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("duplicates", result.Duplicates),
		zap.Int64("merged", result.Merged),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Imported returns the accepted records so far, in input order.
func (p *Pipeline) Imported() []rules.Rule {
	out := make([]rules.Rule, len(p.imported))
	copy(out, p.imported)
	return out
}

// processCSV reads header-prefixed CSV with original, alias and optional
// category columns.
func (p *Pipeline) processCSV(ctx context.Context, filePath string, result *ProcessingResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	originalIdx, ok := cols["original"]
	if !ok {
		return fmt.Errorf("CSV header missing 'original' column")
	}
	aliasIdx, ok := cols["alias"]
	if !ok {
		return fmt.Errorf("CSV header missing 'alias' column")
	}
	categoryIdx, hasCategory := cols["category"]

	return p.processBatches(ctx, func() ([]*DataRecord, error) {
		var batch []*DataRecord

		for len(batch) < p.config.BatchSize {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read CSV record", zap.Error(err))
				continue
			}
			if len(record) <= aliasIdx || len(record) <= originalIdx {
				p.logger.Warn("Invalid CSV record length", zap.Int("length", len(record)))
				continue
			}

			dataRecord := &DataRecord{
				Original: strings.TrimSpace(record[originalIdx]),
				Alias:    strings.TrimSpace(record[aliasIdx]),
			}
			if hasCategory && len(record) > categoryIdx {
				dataRecord.Category = strings.TrimSpace(record[categoryIdx])
			}

			batch = append(batch, dataRecord)
		}

		return batch, nil
	}, result)
}

// processParquet reads Parquet rows with original, alias, category columns.
func (p *Pipeline) processParquet(ctx context.Context, filePath string, result *ProcessingResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return p.processBatches(ctx, func() ([]*DataRecord, error) {
		var batch []*DataRecord

		for len(batch) < p.config.BatchSize {
			var record DataRecord
			err := reader.Read(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read Parquet record", zap.Error(err))
				continue
			}
			batch = append(batch, &record)
		}

		return batch, nil
	}, result)
}

// processJSON reads one JSON object per line.
func (p *Pipeline) processJSON(ctx context.Context, filePath string, result *ProcessingResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return p.processBatches(ctx, func() ([]*DataRecord, error) {
		var batch []*DataRecord

		for len(batch) < p.config.BatchSize {
			var record DataRecord
			err := decoder.Decode(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read JSON record", zap.Error(err))
				continue
			}
			batch = append(batch, &record)
		}

		return batch, nil
	}, result)
}

func (p *Pipeline) processBatches(ctx context.Context, readBatch func() ([]*DataRecord, error), result *ProcessingResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, record := range batch {
			result.TotalRecords++

			if err := p.acceptRecord(record); err != nil {
				if err == errDuplicate {
					result.Duplicates++
					if p.config.SkipDuplicates {
						continue
					}
				}
				result.ProcessedFailed++
				if len(result.Errors) < 20 {
					result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", result.TotalRecords, err))
				}
				continue
			}

			result.ProcessedOK++
		}

		if p.config.ProgressReport > 0 && result.TotalRecords%int64(p.config.ProgressReport) == 0 {
			p.logger.Info("Import progress",
				zap.Int64("records", result.TotalRecords),
				zap.Int64("accepted", result.ProcessedOK),
				zap.Int64("failed", result.ProcessedFailed))
		}
	}

	return nil
}

var errDuplicate = fmt.Errorf("duplicate term or alias")

// acceptRecord validates one row and stages it for the merged output.
// Both sides must be unseen: a term colliding with any existing original
// or alias would make the merged mapping ambiguous.
func (p *Pipeline) acceptRecord(record *DataRecord) error {
	if err := rules.CheckTerm(record.Original); err != nil {
		return fmt.Errorf("original %q: %w", record.Original, err)
	}
	if err := rules.CheckTerm(record.Alias); err != nil {
		return fmt.Errorf("alias %q: %w", record.Alias, err)
	}
	if strings.EqualFold(record.Original, record.Alias) {
		return fmt.Errorf("original and alias are identical: %q", record.Original)
	}

	lowerOriginal := strings.ToLower(record.Original)
	lowerAlias := strings.ToLower(record.Alias)
	if p.seen[lowerOriginal] || p.seen[lowerAlias] {
		return errDuplicate
	}

	category := record.Category
	if category == "" {
		category = rules.DefaultCategory
	}

	p.seen[lowerOriginal] = true
	p.seen[lowerAlias] = true
	p.imported = append(p.imported, rules.Rule{
		Original: record.Original,
		Alias:    record.Alias,
		Category: category,
	})

	return nil
}

// writeMerged writes existing plus imported rules as a category-grouped
// document, preserving rule order within each category. A yaml.Node tree
// is built by hand so the output order is deterministic.
func (p *Pipeline) writeMerged(outputPath string) error {
	var all []rules.Rule
	if p.existing != nil {
		all = append(all, p.existing.All()...)
	}
	all = append(all, p.imported...)

	categoryOrder := make([]string, 0)
	byCategory := make(map[string][]rules.Rule)
	for _, r := range all {
		if _, ok := byCategory[r.Category]; !ok {
			categoryOrder = append(categoryOrder, r.Category)
		}
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}

	categories := &yaml.Node{Kind: yaml.MappingNode}
	for _, cat := range categoryOrder {
		mapping := &yaml.Node{Kind: yaml.MappingNode}
		for _, r := range byCategory[cat] {
			mapping.Content = append(mapping.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: r.Original},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: r.Alias},
			)
		}
		categories.Content = append(categories.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: cat},
			mapping,
		)
	}

	root := &yaml.Node{Kind: yaml.MappingNode}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "categories"},
		categories,
	)

	data, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to marshal rules document: %w", err)
	}

	tmp := outputPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write rules document: %w", err)
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace rules document: %w", err)
	}

	p.logger.Info("Merged rules written",
		zap.String("path", outputPath),
		zap.Int("rules", len(all)),
		zap.Int("imported", len(p.imported)))

	return nil
}
