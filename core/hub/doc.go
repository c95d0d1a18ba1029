// Package hub fans site-scoped events out to connected dashboard clients.
//
// Each connection belongs to at most one site group. Publishing to a site
// reaches only that group and never blocks: a connection whose send queue is
// full is evicted so the remaining subscribers keep receiving updates.
package hub
