// Package broadcast implements the live-connection hub using the actor pattern.
//
// The Hub owns the ordered set of live WebSocket connections and fans each
// broadcast payload out to all of them. Uses single goroutine + command channel
// (no mutexes). Per-connection write goroutines keep a slow or dead viewer from
// ever blocking the writer path; a connection that fails a send is pruned and
// never sees another broadcast.
package broadcast
