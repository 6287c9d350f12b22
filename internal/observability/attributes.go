package observability

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans and metrics.
const (
	AttrOperation      = attribute.Key("cypherguard.operation")
	AttrClassification = attribute.Key("cypherguard.query.classification")
	AttrOutcome        = attribute.Key("cypherguard.outcome")
	AttrTimeoutMs      = attribute.Key("cypherguard.query.timeout_ms")
	AttrStatements     = attribute.Key("cypherguard.query.statements")
	AttrRows           = attribute.Key("cypherguard.response.rows")
	AttrAvailable      = attribute.Key("cypherguard.response.available")
	AttrTruncated      = attribute.Key("cypherguard.response.truncated")
	AttrSampleSize     = attribute.Key("cypherguard.schema.sample_size")
	AttrComponent      = attribute.Key("cypherguard.component")
	AttrHealthState    = attribute.Key("cypherguard.health.state")
	AttrRequestID      = attribute.Key("cypherguard.request_id")
	AttrErrorCode      = attribute.Key("cypherguard.error.code")
)

// Span names.
const (
	SpanExecute       = "cypherguard.execute"
	SpanRunQuery      = "cypherguard.run_query"
	SpanWriteQuery    = "cypherguard.write_query"
	SpanGetSchema     = "cypherguard.get_schema"
	SpanSchemaSample  = "cypherguard.schema.sample"
	SpanShapeResponse = "cypherguard.shape"
)

// ExecutionAttributes describes a request as it is accepted.
func ExecutionAttributes(requestID, operation, classification string, statements int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRequestID.String(requestID),
		AttrOperation.String(operation),
		AttrClassification.String(classification),
		AttrStatements.Int(statements),
	}
}

// ResponseAttributes describes a shaped response.
func ResponseAttributes(rows, available int, truncated bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRows.Int(rows),
		AttrAvailable.Int(available),
		AttrTruncated.Bool(truncated),
	}
}

// ErrorAttributes labels a failed span with the outcome of err.
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		AttrErrorCode.String(Outcome(err)),
	}
}

// CombineAttributes flattens attribute sets.
func CombineAttributes(attrSets ...[]attribute.KeyValue) []attribute.KeyValue {
	total := 0
	for _, set := range attrSets {
		total += len(set)
	}
	combined := make([]attribute.KeyValue, 0, total)
	for _, set := range attrSets {
		combined = append(combined, set...)
	}
	return combined
}
