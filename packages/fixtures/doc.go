// Package fixtures generates Tent documents for scenarios: posts, profiles
// and apps, addressed by generator name and variant.
//
//	post, err := fixtures.Default().Generate("post", "status")
//	post, err = fixtures.Default().Call("post(status_reply)")
package fixtures
