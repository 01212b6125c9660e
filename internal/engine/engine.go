package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/termveil/termveil/internal/audit"
	"github.com/termveil/termveil/internal/cache"
	"github.com/termveil/termveil/internal/history"
	"github.com/termveil/termveil/internal/logger"
	"github.com/termveil/termveil/internal/rules"
	"go.uber.org/zap"
)

// maxCompletions caps the suggestion list returned for a prefix.
const maxCompletions = 20

// Engine ties the rule store, matcher, history, and optional cache/audit
// sinks into the public operation surface. One Engine serves one session;
// construct it explicitly and pass it where needed — there is no global
// instance. Mutating operations are serialized internally, but two
// processes must not share the same history storage.
type Engine struct {
	store   *rules.Store
	history *history.Store
	cache   *cache.ResultCache
	audit   *audit.Store
	logger  *logger.Logger

	mu       sync.Mutex
	matcher  *Matcher
	lastSubs []Substitution
}

// Options carries the optional sinks. Nil fields disable the feature.
type Options struct {
	Cache *cache.ResultCache
	Audit *audit.Store
}

// New builds an engine over a loaded rule store and history store.
func New(store *rules.Store, hist *history.Store, log *logger.Logger, opts Options) *Engine {
	return &Engine{
		store:   store,
		history: hist,
		cache:   opts.Cache,
		audit:   opts.Audit,
		logger:  log,
		matcher: NewMatcher(store.RuleSet()),
	}
}

// Result is the outcome of an encode or decode call.
type Result struct {
	Output        string             `json:"output"`
	Substitutions []Substitution     `json:"substitutions"`
	Summary       Summary            `json:"summary"`
	Operation     *history.Operation `json:"operation,omitempty"`
	CacheHit      bool               `json:"cache_hit,omitempty"`
}

// Encode rewrites original terms into aliases. When preview is true the
// result is computed but neither history nor audit records it.
func (e *Engine) Encode(ctx context.Context, text string, preview bool) (*Result, error) {
	return e.transform(ctx, text, Encode, preview)
}

// Decode rewrites aliases back into original terms. An ambiguous mapping is
// warned about first: reverse lookup against conflicting rules cannot be
// trusted to round-trip.
func (e *Engine) Decode(ctx context.Context, text string, preview bool) (*Result, error) {
	for _, conflict := range rules.Validate(e.RuleSet()) {
		e.logger.Warn("Decoding against an ambiguous mapping", zap.String("conflict", conflict.String()))
	}
	return e.transform(ctx, text, Decode, preview)
}

func (e *Engine) transform(ctx context.Context, text string, dir Direction, preview bool) (*Result, error) {
	e.mu.Lock()
	matcher := e.matcher
	e.mu.Unlock()

	rs := e.store.RuleSet()

	if dir == Encode {
		if aliases := matcher.AliasesPresent(text); len(aliases) > 0 {
			// Decode cannot tell these from encoded terms later.
			e.logger.Warn("Input already contains alias terms; round-trip is not guaranteed",
				zap.Strings("aliases", aliases))
		}
	}

	output, subs, cacheHit := e.cachedTransform(ctx, matcher, rs, text, dir)

	result := &Result{
		Output:        output,
		Substitutions: subs,
		Summary:       Summarize(subs),
		CacheHit:      cacheHit,
	}

	if preview {
		return result, nil
	}

	op, err := e.history.Record(dir.String(), text, output, result.Summary.PerRule, result.Summary.Total)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", dir, err)
	}
	result.Operation = op

	e.mu.Lock()
	e.lastSubs = subs
	e.mu.Unlock()

	opLog := e.logger.WithOperationID(op.ID)

	if e.audit != nil {
		record := &audit.Record{
			OperationID:       op.ID,
			Direction:         op.Direction,
			InputHash:         op.InputHash,
			OutputHash:        op.OutputHash,
			SubstitutionCount: op.SubstitutionCount,
			BackupPath:        op.BackupPath,
		}
		if err := e.audit.Insert(ctx, record); err != nil {
			// Audit is retention, not correctness; the operation stands.
			opLog.Warn("Audit insert failed", zap.Error(err))
		}
	}

	opLog.Info("Transform applied",
		zap.String("direction", dir.String()),
		zap.Int("substitutions", result.Summary.Total),
		zap.Bool("cache_hit", cacheHit),
	)

	return result, nil
}

// cachedTransform runs the pure match+apply pass, consulting the result
// cache when one is configured. Cache trouble degrades to recompute.
func (e *Engine) cachedTransform(ctx context.Context, matcher *Matcher, rs *rules.RuleSet, text string, dir Direction) (string, []Substitution, bool) {
	var key string
	if e.cache != nil {
		key = e.cache.Key(dir.String(), rs.Fingerprint(), text)
		if cached, ok := e.cache.Get(ctx, key); ok {
			var subs []Substitution
			if len(cached.Substitutions) > 0 {
				if err := json.Unmarshal(cached.Substitutions, &subs); err != nil {
					e.logger.Warn("Discarding cached transform with bad substitution list", zap.Error(err))
					subs = nil
				}
			}
			if subs != nil || len(cached.Substitutions) == 0 {
				return cached.Output, subs, true
			}
		}
	}

	matches := matcher.FindMatches(text, dir)
	output, subs := ApplyMatches(text, matches, dir)

	if e.cache != nil {
		raw, err := json.Marshal(subs)
		if err == nil {
			entry := &cache.CachedTransform{
				Output:           output,
				Substitutions:    raw,
				Direction:        dir.String(),
				RulesFingerprint: rs.Fingerprint(),
			}
			if err := e.cache.Store(ctx, key, entry); err != nil {
				e.logger.Debug("Cache store failed", zap.Error(err))
			}
		}
	}

	return output, subs, false
}

// Check reports whether the text is free of original terms, with the
// matched terms and positions when it is not.
func (e *Engine) Check(text string) CheckResult {
	findings := e.FindTerms(text)
	return CheckResult{
		Clean:    len(findings) == 0,
		Findings: findings,
	}
}

// FindTerms lists every original term present in the text with its
// position, line and column.
func (e *Engine) FindTerms(text string) []Finding {
	e.mu.Lock()
	matcher := e.matcher
	e.mu.Unlock()
	return matcher.Findings(text)
}

// Completions suggests aliases starting with prefix, capped at 20.
func (e *Engine) Completions(prefix string) []Completion {
	lower := strings.ToLower(prefix)
	var out []Completion

	for _, r := range e.RuleSet().All() {
		if strings.HasPrefix(strings.ToLower(r.Alias), lower) {
			out = append(out, Completion{
				Label:  r.Alias,
				Detail: fmt.Sprintf("alias of %q (%s)", r.Original, r.Category),
			})
			if len(out) == maxCompletions {
				break
			}
		}
	}

	return out
}

// Rules returns the loaded rules, optionally filtered by category, in
// stable document order.
func (e *Engine) Rules(category string) []rules.Rule {
	if category == "" {
		return e.RuleSet().All()
	}
	return e.RuleSet().ByCategory(category)
}

// Validate reports mapping conflicts in the loaded configuration.
// An empty list means the mapping is unambiguous.
func (e *Engine) Validate() []rules.Conflict {
	return rules.Validate(e.RuleSet())
}

// Stats aggregates substitutions: the most recent operation's when id is
// empty, otherwise the recorded counts of the identified operation.
func (e *Engine) Stats(operationID string) (Summary, error) {
	if operationID == "" {
		e.mu.Lock()
		subs := e.lastSubs
		e.mu.Unlock()
		return Summarize(subs), nil
	}

	op, ok := e.history.Get(operationID)
	if !ok {
		return Summary{}, fmt.Errorf("unknown operation id %q", operationID)
	}

	return e.summaryFromCounts(op.RuleCounts), nil
}

// summaryFromCounts rebuilds a Summary from the per-rule counts persisted
// with an operation, resolving categories through the current rule set.
func (e *Engine) summaryFromCounts(ruleCounts map[string]int) Summary {
	summary := Summary{
		PerRule:     make(map[string]int, len(ruleCounts)),
		PerCategory: make(map[string]int),
	}

	rs := e.RuleSet()

	terms := make([]string, 0, len(ruleCounts))
	for term := range ruleCounts {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	for _, term := range terms {
		count := ruleCounts[term]
		summary.PerRule[term] = count
		summary.Total += count

		category := rules.DefaultCategory
		if rule, ok := rs.Forward(term); ok {
			category = rule.Category
		}
		summary.PerCategory[category] += count
	}

	return summary
}

// Workspace reports the state of a text against the loaded rules together
// with the history bookkeeping: size counts, which originals and aliases
// occur, and how many log entries and backups exist.
func (e *Engine) Workspace(text string) WorkspaceStats {
	e.mu.Lock()
	matcher := e.matcher
	e.mu.Unlock()

	stats := WorkspaceStats{
		Characters:     len([]rune(text)),
		Lines:          strings.Count(text, "\n") + 1,
		Words:          len(strings.Fields(text)),
		RulesLoaded:    e.RuleSet().Len(),
		AliasesPresent: matcher.AliasesPresent(text),
		HistoryEntries: e.history.Len(),
		Backups:        e.history.BackupCount(),
	}
	if text == "" {
		stats.Lines = 0
	}

	seen := make(map[string]bool)
	for _, match := range matcher.FindMatches(text, Encode) {
		key := strings.ToLower(match.Rule.Original)
		if !seen[key] {
			seen[key] = true
			stats.TermsPresent = append(stats.TermsPresent, match.Rule.Original)
		}
	}

	return stats
}

// History lists past operations, oldest first. Metadata only; the text
// lives in the backups.
func (e *Engine) History() []history.Operation {
	return e.history.List()
}

// Undo reverts the most recent operation and returns the restored text.
// Repeatable while history is non-empty; returns history.ErrNoHistory
// when it is not.
func (e *Engine) Undo() (string, *history.Operation, error) {
	return e.history.Undo()
}

// Reload re-reads the rules file and rebuilds the matcher. The previous
// rule set stays active if the reload fails.
func (e *Engine) Reload() (int, error) {
	count, err := e.store.Reload()
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.matcher = NewMatcher(e.store.RuleSet())
	e.mu.Unlock()

	return count, nil
}

// RuleSet exposes the currently loaded rule set.
func (e *Engine) RuleSet() *rules.RuleSet {
	return e.store.RuleSet()
}

// AuditRecent lists the newest audit records. Nil results when no audit
// sink is configured.
func (e *Engine) AuditRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	return e.audit.Recent(ctx, limit)
}

// AuditTotals aggregates the audit table. Zero totals when no audit sink
// is configured.
func (e *Engine) AuditTotals(ctx context.Context) (*audit.Totals, error) {
	return e.audit.GetTotals(ctx)
}

// CacheStats reports result-cache performance, or nil when caching is
// disabled.
func (e *Engine) CacheStats(ctx context.Context) (*cache.Stats, error) {
	if e.cache == nil {
		return nil, nil
	}
	return e.cache.GetStats(ctx)
}

// ClearCache drops all cached transform results. No-op when caching is
// disabled.
func (e *Engine) ClearCache(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Clear(ctx)
}
