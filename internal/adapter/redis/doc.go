// Package redis implements the session store on Redis.
//
// Each session is a hash keyed by its opaque token with a TTL equal to the
// session lifetime, so expiry enforcement lives in the store rather than in
// the resolver. All commands run through a metrics hook and a circuit
// breaker hook; when Redis is down the breaker fails fast and the resolver
// surfaces the outage instead of hanging requests.
package redis
