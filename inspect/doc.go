/*
Package inspect exposes live streams over HTTP so a developer can look at what
a long running scenario observed so far.

Streams are added to a Registry, a goroutine that owns the set of registered
streams and answers requests sent through channels. A Server serves the
registry with the following endpoints:

	GET /streams                   statistics of every registered stream
	GET /streams/{name}            statistics of a single stream
	GET /streams/{name}/history?n= latest n events of a stream
	GET /metrics                   prometheus metrics

Client implements the consumer side of these endpoints.
*/
package inspect
