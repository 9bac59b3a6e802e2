package push

import "context"

// ProviderChunkSize is the hard upper bound of tokens per provider call.
const ProviderChunkSize = 500

// Provider is a platform-specific push sender.
//
// Send must return one Result per submitted token and must not fail the
// whole batch because of individual token errors; the error return is
// reserved for failures that prevented building the request at all.
// An unconfigured provider must report success==false for every token with
// its own *_not_configured code and must not perform any network calls.
type Provider interface {
	// Configured reports whether the provider has usable credentials.
	Configured() bool

	// Send delivers the payload to the given tokens.
	Send(ctx context.Context, tokens []string, payload Payload) (BatchResult, error)
}

// ChunkTokens splits tokens into sub-batches of at most size elements.
func ChunkTokens(tokens []string, size int) [][]string {
	if size <= 0 {
		size = ProviderChunkSize
	}
	var chunks [][]string
	for len(tokens) > 0 {
		n := min(size, len(tokens))
		chunks = append(chunks, tokens[:n])
		tokens = tokens[n:]
	}
	return chunks
}
