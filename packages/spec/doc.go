// Package spec builds and runs conformance scenarios.
//
// A Validator owns a tree of named Nodes. Nodes hold Expectations, child
// nodes, before hooks and dependencies on other nodes. Building the tree
// never touches the network; Run walks it in declaration order and
// executes each Expectation exactly once.
//
//	v := spec.NewValidator("posts_feed")
//	v.Hook("create_posts", createPosts)
//	feed := v.Describe("GET posts_feed", spec.Before("create_posts"))
//	feed.Expect("with type filter", listByType,
//		spec.Status(200),
//		spec.Schema("data", "/data/0"),
//		spec.PropertyLength("/data", 2))
//
// Shared state flows through a Scope: Get searches the node and its
// ancestors, Set writes to the node itself.
package spec
