package assertions

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/match"
	"github.com/abdul-hamid-achik/tentspec/packages/schema"
)

func createResponse(statusCode int, body string, headers map[string]string) *http.Response {
	if headers == nil {
		headers = make(map[string]string)
	}
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = "application/json"
	}
	return &http.Response{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       []byte(body),
		Duration:   100 * time.Millisecond,
	}
}

func schemas(t *testing.T) *schema.Registry {
	t.Helper()
	r, err := schema.Default()
	require.NoError(t, err)
	return r
}

func TestEvaluator_Status(t *testing.T) {
	e := NewEvaluator(createResponse(200, `{}`, nil))

	result := e.Evaluate(Status(200))
	assert.True(t, *result.Valid)
	assert.Equal(t, "/status", result.Diff[0].Path)
	assert.Equal(t, 200, result.Diff[0].Actual)

	result = e.Evaluate(Status(404))
	assert.False(t, *result.Valid)

	result = e.Evaluate(StatusIn(200, 299))
	assert.True(t, *result.Valid)
	assert.Equal(t, "200..299", result.Diff[0].Expected)
}

func TestEvaluator_Headers(t *testing.T) {
	resp := createResponse(200, `{}`, map[string]string{
		"Content-Type": `application/vnd.tent.post.v0+json; type="https://tent.io/types/status/v0#"`,
		"Etag":         `"abc"`,
	})
	e := NewEvaluator(resp)

	result := e.Evaluate(Headers(map[string]any{
		"content-type": regexp.MustCompile(`\Aapplication/vnd\.tent\.post\.v0\+json`),
		"ETag":         `"abc"`,
	}))
	assert.True(t, *result.Valid)
	require.Len(t, result.Diff, 2)
	assert.Equal(t, "/headers/ETag", result.Diff[0].Path)

	result = e.Evaluate(Headers(map[string]any{"Link": match.Present}))
	assert.False(t, *result.Valid)

	result = e.Evaluate(Headers(map[string]any{"Link": match.Absent}))
	assert.True(t, *result.Valid)
}

func TestEvaluator_Body(t *testing.T) {
	e := NewEvaluator(createResponse(200, "hello world", map[string]string{"Content-Type": "text/plain"}))
	assert.True(t, *e.Evaluate(Body("hello world")).Valid)

	e = NewEvaluator(createResponse(200, "goodbye", map[string]string{"Content-Type": "text/plain"}))
	result := e.Evaluate(Body("hello world"))
	assert.False(t, *result.Valid)
	require.Len(t, result.Diff, 1)
	assert.Equal(t, "/body", result.Diff[0].Path)
	assert.Equal(t, "hello world", result.Diff[0].Expected)
	assert.Equal(t, "goodbye", result.Diff[0].Actual)
}

func TestEvaluator_Properties(t *testing.T) {
	resp := createResponse(200, `{"post": {"type": "https://tent.io/types/status/v0#", "content": {"text": "hi"}, "permissions": {"public": true}}}`, nil)
	e := NewEvaluator(resp)

	result := e.Evaluate(Properties("/post", map[string]any{"content": map[string]any{"text": "hi"}}))
	assert.True(t, *result.Valid)
	assert.Equal(t, "/post/content/text", result.Diff[0].Path)

	result = e.Evaluate(Properties("", map[string]any{"post": map[string]any{"permissions": match.Absent}}))
	assert.False(t, *result.Valid)
	assert.Equal(t, "/post/permissions", result.Diff[0].Path)
}

func TestEvaluator_PropertiesAbsentAndPresent(t *testing.T) {
	e := NewEvaluator(createResponse(200, `{"post": {"id": "a"}}`, nil))

	assert.True(t, *e.Evaluate(PropertiesPresent("/post/id")).Valid)
	assert.False(t, *e.Evaluate(PropertiesPresent("/post/id", "/post/entity")).Valid)
	assert.True(t, *e.Evaluate(PropertiesAbsent("/post/permissions")).Valid)
	assert.False(t, *e.Evaluate(PropertiesAbsent("/post/id")).Valid)
}

func TestEvaluator_PartialArrayWithLength(t *testing.T) {
	resp := createResponse(200, `{"posts": [{"type": "a"}, {"type": "b"}]}`, nil)
	results := EvaluateAll(resp, []*Assertion{
		Properties("", map[string]any{"posts": []any{map[string]any{"type": "a"}}}),
	})
	assert.True(t, *Rollup(results))

	results = EvaluateAll(resp, []*Assertion{
		Properties("", map[string]any{"posts": []any{map[string]any{"type": "a"}}}),
		PropertyLength("/posts", 1),
	})
	assert.False(t, *Rollup(results))
	assert.Equal(t, 2, results[1].Diff[0].Actual)
	assert.Equal(t, 1, results[1].Diff[0].Expected)
}

func TestEvaluator_PropertyLength_NotApplicable(t *testing.T) {
	e := NewEvaluator(createResponse(200, `{"count": 3}`, nil))

	result := e.Evaluate(PropertyLength("/count", 3))
	assert.False(t, *result.Valid)
	assert.Contains(t, result.Diff[0].Message, "undefined")

	result = e.Evaluate(PropertyLength("/missing", 0))
	assert.False(t, *result.Valid)
}

func TestEvaluator_Schema(t *testing.T) {
	reg := schemas(t)
	resp := createResponse(200, `{"post": {"content": {"text": "hi"}}, "error": 1}`, nil)
	e := NewEvaluator(resp, WithSchemas(reg))

	result := e.Evaluate(Schema("post_status", "/post/content"))
	assert.True(t, *result.Valid)
	assert.Empty(t, result.Diff)

	result = e.Evaluate(Schema("error", ""))
	assert.False(t, *result.Valid)
	assert.Equal(t, "/error", result.Diff[0].Path)

	result = e.Evaluate(Schema("post", "/missing"))
	assert.False(t, *result.Valid)
	assert.Contains(t, result.Message, "no JSON document")

	result = e.Evaluate(Schema("unknown", ""))
	assert.False(t, *result.Valid)
	assert.Contains(t, result.Message, "schema not found")
}

func TestEvaluator_SchemaWithoutRegistry(t *testing.T) {
	result := NewEvaluator(createResponse(200, `{}`, nil)).Evaluate(Schema("data", ""))
	assert.False(t, *result.Valid)
}

func TestEvaluator_EmptyResponse(t *testing.T) {
	results := EvaluateAll(http.EmptyResponse(), []*Assertion{
		Status(200),
		Properties("/post", map[string]any{"id": "x"}),
	})
	for _, r := range results {
		assert.False(t, *r.Valid, r.Key)
	}
}

func TestAssertion_Key(t *testing.T) {
	assert.Equal(t, "response_schema(post /post)", Schema("post", "/post").Key())
	assert.Equal(t, "response_properties(/)", Properties("", nil).Key())
	assert.Equal(t, "response_status", Status(200).Key())
}
