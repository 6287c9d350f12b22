package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/cypherguard/internal/cypher"
	"github.com/zero-day-ai/cypherguard/internal/graph"
	"github.com/zero-day-ai/cypherguard/internal/observability"
	"github.com/zero-day-ai/cypherguard/internal/schema"
	"github.com/zero-day-ai/cypherguard/internal/shaper"
	"github.com/zero-day-ai/cypherguard/internal/types"
)

// QueryResponse is the result of run_query and write_query.
type QueryResponse struct {
	RequestID string           `json:"request_id" yaml:"request_id"`
	Keys      []string         `json:"keys" yaml:"keys"`
	Rows      []map[string]any `json:"rows" yaml:"rows"`
	Truncated bool             `json:"truncated" yaml:"truncated"`
	// RowCount is len(Rows).
	RowCount int `json:"row_count" yaml:"row_count"`
	// TotalAvailableEstimate counts every row the server produced, including
	// rows dropped by the row cap or the size budget.
	TotalAvailableEstimate int                   `json:"total_available_estimate" yaml:"total_available_estimate"`
	Marker                 *shaper.Marker        `json:"marker,omitempty" yaml:"marker,omitempty"`
	Classification         cypher.Classification `json:"classification" yaml:"classification"`
	// Counters is set when the query ran in a write transaction.
	Counters  *graph.Counters `json:"counters,omitempty" yaml:"counters,omitempty"`
	ElapsedMs int64           `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// RunQuery executes text under the configured policy and shapes the rows to
// the response budget. A nil timeout selects the default; a non-positive
// one is rejected.
func (e *Engine) RunQuery(ctx context.Context, text string, params map[string]any, timeout *time.Duration) (*QueryResponse, error) {
	ctx, span := e.tracer.Start(ctx, observability.SpanRunQuery)
	defer span.End()

	resp, err := e.query(ctx, OpRunQuery, text, params, timeout)
	endSpan(span, err)
	return resp, err
}

// WriteQuery executes text in a write transaction and reports the commit
// counters. It is unavailable while read-only mode is enforced.
func (e *Engine) WriteQuery(ctx context.Context, text string, params map[string]any, timeout *time.Duration) (*QueryResponse, error) {
	ctx, span := e.tracer.Start(ctx, observability.SpanWriteQuery)
	defer span.End()

	if e.policy.ReadOnlyEnforced {
		err := types.NewError(types.POLICY_VIOLATION, "write_query is disabled in read-only mode")
		e.metrics.RecordQuery(ctx, OpWriteQuery, cypher.Classify(text).String(), 0, err)
		endSpan(span, err)
		return nil, err
	}

	resp, err := e.query(ctx, OpWriteQuery, text, params, timeout)
	endSpan(span, err)
	return resp, err
}

func (e *Engine) query(ctx context.Context, op, text string, params map[string]any, timeout *time.Duration) (*QueryResponse, error) {
	req := Request{Text: text, Params: params}
	if timeout != nil {
		if *timeout <= 0 {
			return nil, types.NewError(types.INVALID_REQUEST, fmt.Sprintf("timeout must be positive, got %s", *timeout))
		}
		req.Timeout = *timeout
	}

	var resp *QueryResponse
	_, err := e.execute(ctx, execution{
		op:     op,
		req:    req,
		limits: e.limits,
		policy: e.policy,
		consume: func(ctx context.Context, out *Outcome) error {
			ctx, span := e.tracer.Start(ctx, observability.SpanShapeResponse)
			defer span.End()

			shaped, err := shaper.Shape(out.Rows, e.limits.ResponseBudget)
			if err != nil {
				endSpan(span, err)
				return err
			}
			shaped.Extend(out.Available)

			resp = &QueryResponse{
				RequestID:              out.RequestID,
				Keys:                   out.Keys,
				Rows:                   shaped.Rows,
				Truncated:              shaped.Truncated,
				RowCount:               shaped.Included,
				TotalAvailableEstimate: shaped.Total,
				Marker:                 shaped.Marker,
				Classification:         out.Classification,
				ElapsedMs:              out.Elapsed.Milliseconds(),
			}
			if out.Mode == graph.AccessModeWrite {
				counters := out.Summary.Counters
				resp.Counters = &counters
			}
			if resp.Keys == nil {
				resp.Keys = []string{}
			}

			span.SetAttributes(
				observability.ResponseAttributes(shaped.Included, shaped.Total, shaped.Truncated)...,
			)
			if shaped.Truncated {
				e.metrics.RecordTruncation(ctx)
				e.logger.Info(ctx, "response truncated",
					"operation", op,
					"returned", shaped.Included,
					"available", shaped.Total,
					"budget", e.limits.ResponseBudget,
				)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetSchema samples the graph and returns its schema summary. It always
// runs read-only, whatever the configured policy. A nil sampleSize selects
// the default; larger values are capped at Limits.MaxSampleSize.
func (e *Engine) GetSchema(ctx context.Context, sampleSize *int) (summary *schema.Summary, err error) {
	n := 0
	if sampleSize != nil {
		if *sampleSize <= 0 {
			return nil, types.NewError(types.INVALID_REQUEST, fmt.Sprintf("sample size must be positive, got %d", *sampleSize))
		}
		n = *sampleSize
	}
	n, err = e.limits.ClampSampleSize(n)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, observability.SpanGetSchema,
		trace.WithAttributes(observability.AttrSampleSize.Int(n)))
	defer func() {
		endSpan(span, err)
		span.End()
		e.metrics.RecordInspection(ctx, n, err)
	}()

	summary, err = e.inspector.Inspect(ctx, n)
	if err != nil {
		e.logger.Error(ctx, "schema inspection failed", "sample_size", n, "error", err.Error())
		return nil, err
	}
	e.logger.Info(ctx, "schema inspected",
		"sample_size", n,
		"labels", len(summary.Labels),
		"relationship_types", len(summary.RelationshipTypes),
		"truncated", summary.Sampling.Truncated,
	)
	return summary, nil
}

// runSample runs one schema sampling query through the pipeline with
// read-only enforced. Every sub-query gets the full default timeout, and
// the row cap always admits the sampler's one-row overflow probe.
func (e *Engine) runSample(ctx context.Context, text string, params map[string]any) ([]graph.Record, error) {
	ctx, span := e.tracer.Start(ctx, observability.SpanSchemaSample)
	defer span.End()

	limits := e.limits
	if limit, ok := params["limit"].(int64); ok && int(limit) > limits.MaxRows {
		limits.MaxRows = int(limit)
	}

	out, err := e.execute(ctx, execution{
		op:     OpSchemaSample,
		req:    Request{Text: text, Params: params},
		limits: limits,
		policy: Policy{ReadOnlyEnforced: true, ExplainCheck: e.policy.ExplainCheck},
	})
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	return out.Rows, nil
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(observability.ErrorAttributes(err)...)
}
