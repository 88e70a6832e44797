// Package peer is the embedded local Tent server.
//
// Each user is mounted at /{user}/ and serves discovery, a posts feed and
// individual posts backed by a db.Store. When a correlator is attached,
// every request is passed through its capture middleware keyed by user
// name, so requests the server under test makes to a user can be asserted
// on afterwards.
package peer
