// Package correlator matches requests seen by the embedded peer against
// asynchronous expectations.
//
// The server under test sometimes makes its own requests to the peer
// (discovery, fetching a post on a client's behalf). Middleware captures
// those exchanges while a correlation key is watched, or into a general
// buffer while expectations are outstanding. Drain runs after every
// validator has finished and binds buffered exchanges to expectations by
// method and path, waiting on a ticker up to a deadline for late arrivals.
//
// All mutable state is owned by a Correlator and guarded by one mutex that
// is never held while a request is being served.
package correlator
