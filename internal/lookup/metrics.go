package lookup

import "expvar"

var (
	requests = expvar.NewInt("lookup_requests")
	failures = expvar.NewMap("lookup_failures")
	cacheHit = expvar.NewInt("lookup_cache_hits")
)
