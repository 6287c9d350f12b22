package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zero-day-ai/cypherguard/internal/cypher"
	"github.com/zero-day-ai/cypherguard/internal/graph"
	"github.com/zero-day-ai/cypherguard/internal/types"
)

// Sampling queries. Samples fetch one row more than the sample size so a
// population larger than the sample is detectable.
const (
	labelsQuery            = "CALL db.labels() YIELD label RETURN label ORDER BY label"
	relationshipTypesQuery = "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType ORDER BY relationshipType"
	labelSampleQuery       = "MATCH (n:%s) RETURN properties(n) AS props LIMIT $limit"
	relSampleQuery         = "MATCH (a)-[r:%s]->(b) RETURN labels(a) AS start, labels(b) AS end, properties(r) AS props LIMIT $limit"
)

// Runner executes one read-only sampling query. Implementations apply the
// same timeout and policy to every call.
type Runner interface {
	RunRead(ctx context.Context, cypher string, params map[string]any) ([]graph.Record, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cypher string, params map[string]any) ([]graph.Record, error)

// RunRead calls f.
func (f RunnerFunc) RunRead(ctx context.Context, cypher string, params map[string]any) ([]graph.Record, error) {
	return f(ctx, cypher, params)
}

// Inspector produces schema summaries.
type Inspector interface {
	Inspect(ctx context.Context, sampleSize int) (*Summary, error)
}

// DefaultConcurrency bounds parallel sampling queries.
const DefaultConcurrency = 4

// Sampler runs the sampling battery through a Runner.
type Sampler struct {
	runner      Runner
	concurrency int
	logger      *slog.Logger
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithConcurrency sets how many sampling queries run at once.
func WithConcurrency(n int) SamplerOption {
	return func(s *Sampler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SamplerOption {
	return func(s *Sampler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSampler creates a Sampler.
func NewSampler(runner Runner, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		runner:      runner,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "schema.sampler")
	return s
}

// Inspect samples up to sampleSize instances of every label and relationship
// type. Any failing query fails the inspection with that query's error.
func (s *Sampler) Inspect(ctx context.Context, sampleSize int) (*Summary, error) {
	if sampleSize <= 0 {
		return nil, types.NewError(types.INVALID_REQUEST, fmt.Sprintf("sample size must be positive, got %d", sampleSize))
	}
	start := time.Now()
	var queries atomic.Int64

	run := func(ctx context.Context, query string, params map[string]any) ([]graph.Record, error) {
		queries.Add(1)
		return s.runner.RunRead(ctx, query, params)
	}

	labelNames, err := s.catalog(ctx, run, labelsQuery, "label")
	if err != nil {
		return nil, fmt.Errorf("listing labels: %w", err)
	}
	typeNames, err := s.catalog(ctx, run, relationshipTypesQuery, "relationshipType")
	if err != nil {
		return nil, fmt.Errorf("listing relationship types: %w", err)
	}

	labels := make([]Label, len(labelNames))
	rels := make([]RelationshipType, len(typeNames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, name := range labelNames {
		g.Go(func() error {
			label, err := s.sampleLabel(gctx, run, name, sampleSize)
			if err != nil {
				return fmt.Errorf("sampling label %q: %w", name, err)
			}
			labels[i] = label
			return nil
		})
	}
	for i, name := range typeNames {
		g.Go(func() error {
			rel, err := s.sampleRelationshipType(gctx, run, name, sampleSize)
			if err != nil {
				return fmt.Errorf("sampling relationship type %q: %w", name, err)
			}
			rels[i] = rel
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	linkConnections(labels, rels)

	summary := &Summary{
		Labels:            labels,
		RelationshipTypes: rels,
		Sampling: Sampling{
			SampleSize: sampleSize,
			Queries:    int(queries.Load()),
			ElapsedMs:  time.Since(start).Milliseconds(),
		},
	}
	for _, l := range labels {
		summary.Sampling.Truncated = summary.Sampling.Truncated || l.Truncated
	}
	for _, r := range rels {
		summary.Sampling.Truncated = summary.Sampling.Truncated || r.Truncated
	}

	s.logger.Debug("schema sampled",
		"labels", len(labels),
		"relationship_types", len(rels),
		"queries", summary.Sampling.Queries,
		"truncated", summary.Sampling.Truncated,
		"elapsed_ms", summary.Sampling.ElapsedMs,
	)
	return summary, nil
}

type runFunc func(ctx context.Context, query string, params map[string]any) ([]graph.Record, error)

// catalog returns the sorted, distinct string values of column.
func (s *Sampler) catalog(ctx context.Context, run runFunc, query, column string) ([]string, error) {
	records, err := run(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(records))
	names := make([]string, 0, len(records))
	for _, rec := range records {
		v, ok := rec.Get(column)
		if !ok {
			continue
		}
		name, ok := v.(string)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func sampleParams(sampleSize int) map[string]any {
	return map[string]any{"limit": int64(sampleSize) + 1}
}

func (s *Sampler) sampleLabel(ctx context.Context, run runFunc, name string, sampleSize int) (Label, error) {
	records, err := run(ctx, fmt.Sprintf(labelSampleQuery, cypher.QuoteIdentifier(name)), sampleParams(sampleSize))
	if err != nil {
		return Label{}, err
	}

	truncated := len(records) > sampleSize
	if truncated {
		records = records[:sampleSize]
	}

	sig := newSignature()
	for _, rec := range records {
		sig.add(propsOf(rec, "props"))
	}
	return Label{
		Name:       name,
		Sampled:    len(records),
		Truncated:  truncated,
		Properties: sig.properties(),
	}, nil
}

func (s *Sampler) sampleRelationshipType(ctx context.Context, run runFunc, name string, sampleSize int) (RelationshipType, error) {
	records, err := run(ctx, fmt.Sprintf(relSampleQuery, cypher.QuoteIdentifier(name)), sampleParams(sampleSize))
	if err != nil {
		return RelationshipType{}, err
	}

	truncated := len(records) > sampleSize
	if truncated {
		records = records[:sampleSize]
	}

	sig := newSignature()
	pairs := map[Endpoint]struct{}{}
	for _, rec := range records {
		sig.add(propsOf(rec, "props"))
		for _, startLabel := range labelsOf(rec, "start") {
			for _, endLabel := range labelsOf(rec, "end") {
				pairs[Endpoint{Start: startLabel, End: endLabel}] = struct{}{}
			}
		}
	}

	endpoints := make([]Endpoint, 0, len(pairs))
	for p := range pairs {
		endpoints = append(endpoints, p)
	}
	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].Start != endpoints[j].Start {
			return endpoints[i].Start < endpoints[j].Start
		}
		return endpoints[i].End < endpoints[j].End
	})

	return RelationshipType{
		Name:       name,
		Sampled:    len(records),
		Truncated:  truncated,
		Endpoints:  endpoints,
		Properties: sig.properties(),
	}, nil
}

func propsOf(rec graph.Record, column string) map[string]any {
	v, _ := rec.Get(column)
	props, _ := v.(map[string]any)
	return props
}

// labelsOf returns the labels in column, or a single empty label for an
// unlabelled node.
func labelsOf(rec graph.Record, column string) []string {
	v, _ := rec.Get(column)
	var labels []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				labels = append(labels, s)
			}
		}
	case []string:
		labels = append(labels, val...)
	}
	if len(labels) == 0 {
		return []string{""}
	}
	return labels
}

// linkConnections fills each label's outgoing and incoming connections from
// the sampled relationship endpoints.
func linkConnections(labels []Label, rels []RelationshipType) {
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l.Name] = i
	}

	for _, r := range rels {
		for _, ep := range r.Endpoints {
			if i, ok := index[ep.Start]; ok {
				labels[i].Outgoing = appendConnection(labels[i].Outgoing, Connection{Type: r.Name, Label: ep.End})
			}
			if i, ok := index[ep.End]; ok {
				labels[i].Incoming = appendConnection(labels[i].Incoming, Connection{Type: r.Name, Label: ep.Start})
			}
		}
	}
}

// appendConnection keeps conns sorted and free of duplicates. Relationship
// types and endpoints are visited in sorted order, so appending preserves
// order.
func appendConnection(conns []Connection, c Connection) []Connection {
	for _, existing := range conns {
		if existing == c {
			return conns
		}
	}
	return append(conns, c)
}
