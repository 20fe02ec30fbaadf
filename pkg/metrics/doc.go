/*
Package metrics defines the registry's Prometheus collectors.

Exposed series: request duration by response code and matched route, a
panic counter, publish error counters broken down by phase (auth, tarball
storage, index) and error kind, publish sub-component latency for backends
that can report it, and healthcheck failures by provider.

All collectors are registered at init and served by Handler on the metrics
address.
*/
package metrics
