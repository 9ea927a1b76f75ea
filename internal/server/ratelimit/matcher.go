package ratelimit

import "strings"

// MatchEndpoint returns the configuration for a request, or nil when none
// applies. An exact path wins; otherwise the longest configured path ending
// in "/" that prefixes the request path is used, so "/v1/runs/" covers
// "/v1/runs/{id}".
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	var best *EndpointConfig
	for i := range configs {
		c := &configs[i]
		if c.Method != method {
			continue
		}
		if c.Path == path {
			return c
		}
		if strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) &&
			(best == nil || len(c.Path) > len(best.Path)) {
			best = c
		}
	}
	return best
}
