package fixtures

import (
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// Tent post types used by the generators.
const (
	StatusType      = "https://tent.io/types/status/v0#"
	StatusReplyType = "https://tent.io/types/status/v0#reply"
	AppType         = "https://tent.io/types/app/v0#"
	MetaType        = "https://tent.io/types/meta/v0#"
)

var words = strings.Fields(`lorem ipsum dolor sit amet consectetur adipiscing elit sed do
eiusmod tempor incididunt ut labore et dolore magna aliqua enim ad minim veniam quis
nostrud exercitation ullamco laboris nisi aliquip ex ea commodo consequat`)

var randomTypes = []string{
	"https://tent.io/types/essay/v0#",
	"https://tent.io/types/photo/v0#",
	"https://tent.io/types/repost/v0#status",
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(length int, charset string) string {
	result := make([]byte, length)
	for i := range result {
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}

// Sentence returns a random sentence of n words, capped at max bytes.
func Sentence(n, max int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = words[rand.Intn(len(words))]
	}
	s := strings.Join(parts, " ")
	if len(s) > max {
		s = s[:max]
	}
	return strings.TrimSpace(s)
}

// ID returns a random url-safe identifier.
func ID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func publicPermissions() *value.Object {
	return value.NewObject(value.O("public", value.Bool(true)))
}

func StatusPost() *value.Object {
	return value.NewObject(
		value.O("type", value.String(StatusType)),
		value.O("content", value.NewObject(value.O("text", value.String(Sentence(12, 256))))),
		value.O("permissions", publicPermissions()),
	)
}

func StatusReplyPost() *value.Object {
	p := StatusPost()
	p.Set("type", value.String(StatusReplyType))
	return p
}

func RandomPost() *value.Object {
	return value.NewObject(
		value.O("type", value.String(randomTypes[rand.Intn(len(randomTypes))])),
		value.O("content", value.NewObject(
			value.O("title", value.String(Sentence(4, 64))),
			value.O("body", value.String(Sentence(40, 1024))),
		)),
		value.O("permissions", publicPermissions()),
	)
}

func Profile() *value.Object {
	return value.NewObject(
		value.O("name", value.String(Sentence(3, 256))),
		value.O("bio", value.String(Sentence(20, 256))),
		value.O("website", value.String("https://"+strings.ToLower(randomString(8, "abcdefghijklmnopqrstuvwxyz"))+".example.com/"+randomString(6, alphanumeric))),
		value.O("location", value.String(Sentence(2, 64))),
	)
}

func App() *value.Object {
	return value.NewObject(
		value.O("type", value.String(AppType)),
		value.O("content", value.NewObject(
			value.O("name", value.String("tentspec "+randomString(6, alphanumeric))),
			value.O("url", value.String("https://tentspec.example.com")),
			value.O("redirect_uri", value.String("https://tentspec.example.com/oauth/callback")),
			value.O("types", value.NewObject(
				value.O("read", value.Array{value.String("all")}),
				value.O("write", value.Array{value.String("all")}),
			)),
			value.O("scopes", value.Array{value.String("import_posts")}),
		)),
		value.O("permissions", value.NewObject(value.O("public", value.Bool(false)))),
	)
}

func AppWithAuth() *value.Object {
	a := App()
	a.Set("id", value.String(ID()))
	a.Set("published_at", value.Number(float64(time.Now().UnixMilli())))
	a.Set("credentials", value.NewObject(
		value.O("id", value.String(ID())),
		value.O("hawk_key", value.String(randomString(32, alphanumeric))),
		value.O("hawk_algorithm", value.String("sha256")),
	))
	return a
}
