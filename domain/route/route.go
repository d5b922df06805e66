package route

// Unit is the interval a RateLimitSpec's limit is expressed per.
type Unit string

const (
	UnitSecond Unit = "sec"
	UnitMinute Unit = "min"
	// UnitHour covers both the "hrs" and "hr" spellings seen in config.
	// One historical build treated hrs identically to min; that was a bug.
	// This implementation always refills at a true per-hour rate.
	UnitHour Unit = "hrs"
)

// RateLimitSpec describes a token bucket: a sustained rate of one token
// per Unit/Limit interval and a bucket capacity of Burst. Burst is used
// as given; config parsing fills it with Limit when the burst is absent.
type RateLimitSpec struct {
	Unit  Unit
	Limit int
	Burst int
}

// Route is an immutable (after load) host-pattern, upstream, options
// triple. Key is the route's raw pattern text, also the identifier the
// rate-limit registry uses to scope that route's buckets.
type Route struct {
	Key            string
	Pattern        *Pattern
	Upstream       string
	RateLimit      *RateLimitSpec
	Plugins        []string
	ReputationGate bool
}

// Config is a bind address plus an ordered set of routes. Order is
// load-bearing: Find returns the first match.
type Config struct {
	Bind                 string
	Routes               []Route
	ReputationGateGlobal bool
}

// Find walks Routes in order and returns the first whose pattern matches
// host. Routing is deterministic: the same config and host always select
// the same route.
func (c *Config) Find(host string) (*Route, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Routes {
		if c.Routes[i].Pattern.Match(host) {
			return &c.Routes[i], true
		}
	}
	return nil, false
}
