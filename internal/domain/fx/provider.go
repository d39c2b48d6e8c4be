package fx

import "context"

// Provider fetches a quotation from one upstream rate source (RBZ feed,
// interbank desk, parallel market tracker). It is a capability injected into
// the cache so tests can substitute deterministic implementations. A fetch
// that exceeds the caller's context deadline is a failure like any other.
type Provider interface {
	Fetch(ctx context.Context, source RateSource, currency Currency) (*ExchangeRate, error)
}
