// Package async provides small helpers for running work concurrently with
// bounded parallelism.
//
// SettleAll maps a function over a slice using at most n goroutines and
// returns one output per input in input order. Every element is always
// processed; an individual outcome never aborts its siblings, which is why
// the mapped function returns a plain value rather than (value, error).
// Callers that need failure information encode it in the result type.
//
// Example:
//
//	results := async.SettleAll(ctx, tokens, 8, func(ctx context.Context, token string) Result {
//		return send(ctx, token)
//	})
package async
