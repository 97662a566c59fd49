// Package push sends mobile push notifications through the Expo push API.
//
// A Client posts one message per call with a bearer access token. Non-2xx
// responses and tickets with status "error" are failures. An optional
// CircuitBreaker stops hammering Expo while it is down.
package push
