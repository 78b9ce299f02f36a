/*
Package cache provides a unified caching interface with multiple backend support.

Supported backends:
  - Memory: In-memory cache, the default for single-process deployments
  - Redis: Distributed cache, for route-resolution sharing across replicas
*/
package cache
