// Package validators holds the shipped Tent conformance validators.
//
// Each constructor declares one spec.Validator against the server under
// test. Nothing is sent while declaring. NewPostValidator generates its
// documents up front because its tree is derived from them; the others
// generate documents when a builder or hook runs. All returns them in the
// order they run.
package validators
