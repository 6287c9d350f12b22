package types_test

import (
	"errors"
	"fmt"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

func ExampleWrapError() {
	cause := errors.New("connection reset by peer")
	err := types.WrapError(types.ENGINE_ERROR, "query failed", cause)

	fmt.Println(err)
	fmt.Println(types.CodeOf(err))
	fmt.Println(errors.Is(err, cause))
	// Output:
	// [ENGINE_ERROR] query failed: connection reset by peer
	// ENGINE_ERROR
	// true
}

func ExampleError_WithDetail() {
	err := types.NewError(types.TIMEOUT_EXCEEDED, "deadline of 2s exceeded").
		WithDetail("timeout_ms", 2000)

	fmt.Println(types.HasCode(fmt.Errorf("run_query: %w", err), types.TIMEOUT_EXCEEDED))
	fmt.Println(err.Details["timeout_ms"])
	// Output:
	// true
	// 2000
}
