package validators

import (
	"regexp"

	"github.com/abdul-hamid-achik/tentspec/packages/fixtures"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/schema"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
	"github.com/abdul-hamid-achik/tentspec/packages/tent"
	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// Members a server must ignore when they are set on a new post.
var ignoredMembers = []string{
	"/id", "/received_at", "/entity", "/original_entity", "/app",
	"/version/id", "/version/published_at", "/version/received_at",
}

// Post members checked with a value of the wrong type.
var typedMembers = []string{
	"published_at", "version", "mentions", "licenses", "content", "attachments", "permissions",
}

var versionID = regexp.MustCompile(`\Asha512t256-[0-9a-f]{64}\z`)

// NewPost checks post creation against valid and invalid documents.
//
// The new_post shared example reads "post" (*value.Object),
// "content_schema" (string) and optionally "post_attachments"
// ([]*http.Attachment) from the scope it is expanded into.
func NewPost(d Deps) *spec.Validator {
	v := spec.NewValidator("NewPostValidator")
	reg := schemas(v, d.Schemas)

	v.SharedExample("new_post", func(n *spec.Node) {
		newPostExamples(n, reg)
	})

	status := generator(v, d.Fixtures, "post", "status")
	reply := generator(v, d.Fixtures, "post", "status_reply")

	create := v.Describe("POST /posts")
	create.Context("with status post", func(n *spec.Node) {
		n.Set("post", status())
		n.Set("content_schema", "post_status")
		n.BehavesAs("new_post")
	})
	create.Context("with status reply post", func(n *spec.Node) {
		n.Set("post", reply())
		n.Set("content_schema", "post_status")
		n.BehavesAs("new_post")
	})
	create.Context("with status post with attachments", func(n *spec.Node) {
		n.Set("post", status())
		n.Set("content_schema", "post_status")
		n.Set("post_attachments", []*http.Attachment{
			{Category: "photos", Name: "fake.png", ContentType: "image/png", Data: []byte("Fake image data")},
			{Category: "photos", Name: "other.png", ContentType: "image/png", Data: []byte("Other fake image data")},
		})
		n.BehavesAs("new_post")
	})

	return v
}

func newPostExamples(n *spec.Node, reg *schema.Registry) {
	v := n.Validator()
	post, ok := spec.Lookup[*value.Object](n.Scope(), "post")
	if !ok {
		v.AddError(spec.Failf(nil, "new_post: no post in %s", n.PathString()))
		return
	}
	contentSchema, _ := spec.Lookup[string](n.Scope(), "content_schema")
	attachments, _ := spec.Lookup[[]*http.Attachment](n.Scope(), "post_attachments")
	postProps := schemaProperties(schemaDoc(v, reg, "post"))

	postType := typeOf(post)
	fresh := func() *value.Object {
		return value.Clone(post).(*value.Object)
	}
	create := func(doc any, atts ...*http.Attachment) spec.Builder {
		return func(c *spec.Call) (*http.Request, error) {
			return remote(c.Env()).WithoutAuth().NewPost(postType, doc, atts...)
		}
	}

	valid := func(n *spec.Node, desc string, doc *value.Object) {
		opts := []spec.ExpectOption{
			spec.Headers(tentHeaders),
			spec.Status(200),
			spec.Schema("post", "/post"),
			spec.Properties("/post", post),
			spec.Properties("/post/version", map[string]any{"id": versionID}),
		}
		if contentSchema != "" {
			opts = append(opts, spec.Schema(contentSchema, "/post/content"))
		}
		if len(attachments) > 0 {
			opts = append(opts, spec.Properties("/post/attachments", expectedAttachments(attachments)))
		}
		n.Expect(desc, create(doc, attachments...), opts...)
	}
	invalid := func(n *spec.Node, desc string, build spec.Builder) {
		n.Expect(desc, build, spec.Headers(errorHeaders), spec.Status(400), spec.Schema("error", ""))
	}

	n.Context("with valid attributes", func(n *spec.Node) {
		valid(n, "creates post", fresh())

		n.Context("when permissions.public member is null", func(n *spec.Node) {
			doc := fresh()
			setAt(doc, "/permissions/public", value.Null{})
			valid(n, "creates post", doc)
		})

		n.Context("when permissions member is null", func(n *spec.Node) {
			doc := fresh()
			doc.Set("permissions", value.Null{})
			valid(n, "creates post", doc)
		})

		n.Context("when member set that should be ignored", func(n *spec.Node) {
			for _, pointer := range ignoredMembers {
				p, ok := lookupProperty(postProps, pointer)
				if !ok {
					v.AddError(spec.Failf(nil, "post schema has no member %s", pointer))
					continue
				}
				doc := fresh()
				setAt(doc, pointer, validValue(p.Type, p.Format))
				valid(n, "ignores "+pointer, doc)
			}
		})
	})

	var invalidMember func(n *spec.Node, pointer string, p property)
	invalidMember = func(n *spec.Node, pointer string, p property) {
		if p.Type == "" {
			return
		}
		doc := fresh()
		setAt(doc, pointer, invalidValue(p.Type, p.Format))
		invalid(n, "rejects "+pointer, create(doc))

		for _, child := range p.Properties {
			invalidMember(n, value.JoinPointer(pointer, child.Name), child)
		}
		if p.Items != nil {
			invalidMember(n, pointer+"/-", property{Type: p.Items.Type, Format: p.Items.Format})
		}
	}

	n.Context("with invalid attributes", func(n *spec.Node) {
		if len(attachments) > 0 {
			n.Context("when attachment hash mismatch", func(n *spec.Node) {
				bad := make([]*http.Attachment, len(attachments))
				for i, a := range attachments {
					cp := *a
					cp.Headers = map[string]string{"Attachment-Digest": "foobar"}
					bad[i] = &cp
				}
				invalid(n, "rejects post", create(fresh(), bad...))
			})
		}

		n.Context("when extra field in content", func(n *spec.Node) {
			doc := fresh()
			setAt(doc, "/content/extra_member", value.String("I shouldn't be here!"))
			invalid(n, "rejects post", create(doc))
		})

		n.Context("when content member is wrong type", func(n *spec.Node) {
			if contentSchema == "" {
				return
			}
			for _, p := range schemaProperties(schemaDoc(v, reg, contentSchema)) {
				invalidMember(n, value.JoinPointer("/content", p.Name), p)
			}
		})

		n.Context("when post member is wrong type", func(n *spec.Node) {
			for _, name := range typedMembers {
				p, ok := lookupProperty(postProps, "/"+name)
				if !ok {
					v.AddError(spec.Failf(nil, "post schema has no member %s", name))
					continue
				}
				invalidMember(n, "/"+name, p)
			}
		})

		n.Context("when extra post member", func(n *spec.Node) {
			doc := fresh()
			doc.Set("extra_member", value.String("I shouldn't be here!"))
			invalid(n, "rejects post", create(doc))
		})

		n.Context("when content is wrong type", func(n *spec.Node) {
			for _, content := range []value.Value{
				value.String("I should be an object"),
				value.Array{value.String("My parent should be an object!")},
				value.Bool(true),
			} {
				doc := fresh()
				doc.Set("content", content)
				invalid(n, "rejects "+value.TypeName(content)+" content", create(doc))
			}
		})
	})

	n.Context("without request body", func(n *spec.Node) {
		invalid(n, "rejects request", func(c *spec.Call) (*http.Request, error) {
			return remote(c.Env()).WithoutAuth().NewPost(fixtures.AppType, nil)
		})
	})

	n.Context("when request body is wrong type", func(n *spec.Node) {
		invalid(n, "rejects request", func(c *spec.Call) (*http.Request, error) {
			return remote(c.Env()).WithoutAuth().NewPost(fixtures.AppType, value.String("I should be an object"))
		})
	})

	n.Context("with invalid content-type header", func(n *spec.Node) {
		n.Expect("rejects request", func(c *spec.Call) (*http.Request, error) {
			req, err := create(fresh())(c)
			if err != nil {
				return nil, err
			}
			return req.SetHeader("Content-Type", "application/json"), nil
		}, spec.Headers(errorHeaders), spec.Status(415), spec.Schema("error", ""))
	})
}

// expectedAttachments is how a server describes uploaded attachments.
func expectedAttachments(list []*http.Attachment) []any {
	out := make([]any, len(list))
	for i, a := range list {
		out[i] = map[string]any{
			"category":     a.Category,
			"content_type": a.ContentType,
			"name":         a.Name,
			"digest":       tent.Digest(a.Data),
			"size":         len(a.Data),
		}
	}
	return out
}
