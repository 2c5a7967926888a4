package artifact

import "context"

// Transport fetches a compressed archive from a Source.
// Implementations must not retry and must remove any temporary files
// they create, whether the fetch succeeds or fails.
type Transport interface {
	Fetch(ctx context.Context, src Source) (*Archive, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, src Source) (*Archive, error)

// Fetch calls f.
func (f TransportFunc) Fetch(ctx context.Context, src Source) (*Archive, error) {
	return f(ctx, src)
}
