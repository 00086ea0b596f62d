// Package cli implements the gatehouse command line tool.
//
// Commands talk to a running engine over its HTTP API; nothing here
// touches storage directly. Mutating commands act as the user named by
// -actor (or GATEHOUSE_ACTOR), which the engine authorizes like any
// other administrative caller.
package cli
