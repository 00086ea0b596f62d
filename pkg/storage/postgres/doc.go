// Package postgres manages the shared database and Redis connections.
//
// The ConnectionManager holds the PostgreSQL primary plus optional read
// replicas with round-robin selection; the domain stores (principals, roles,
// grants, memberships, quotas, audit events) each take a *sql.DB from it.
// Reads that tolerate replica lag (permission resolution, audit queries) may
// use Replica(); all writes and the atomic quota increment use Primary().
//
// RedisClient wraps the optional Redis connection shared by the hot quota
// counter ledger and the sweeper's run lock.
package postgres
