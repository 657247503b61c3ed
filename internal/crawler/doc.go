// Package crawler implements the bounded, domain-scoped depth-first crawl and
// the shared job types used by the worker, API, and storage layers.
package crawler
