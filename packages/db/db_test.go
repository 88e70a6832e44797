package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite3://"+filepath.Join(t.TempDir(), "peer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func post(entity, id, version, typ string) *Post {
	return &Post{
		Entity:    entity,
		ID:        id,
		VersionID: version,
		Type:      typ,
		Doc: value.NewObject(
			value.O("id", value.String(id)),
			value.O("type", value.String(typ)),
			value.O("version", value.NewObject(value.O("id", value.String(version)))),
		),
	}
}

func TestUsers(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &User{Name: "alice", Entity: "http://127.0.0.1/alice", MetaPostID: "meta"}))
	u, err := s.User(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "meta", u.MetaPostID)

	_, err = s.User(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.CreateUser(ctx, &User{Name: "alice", Entity: "other", MetaPostID: "m"}))
}

func TestPostVersions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	const entity = "http://127.0.0.1/alice"

	require.NoError(t, s.PutPost(ctx, post(entity, "p1", "v1", "https://tent.io/types/status/v0#")))
	require.NoError(t, s.PutPost(ctx, post(entity, "p1", "v2", "https://tent.io/types/status/v0#")))

	latest, err := s.Post(ctx, entity, "p1")
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.VersionID)
	v, ok := value.Lookup(latest.Doc, "/version/id")
	require.True(t, ok)
	assert.Equal(t, value.String("v2"), v)

	versions, err := s.Versions(ctx, entity, "p1")
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	_, err = s.Post(ctx, entity, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeed(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	const entity = "http://127.0.0.1/alice"

	require.NoError(t, s.PutPost(ctx, post(entity, "a", "v1", "https://tent.io/types/status/v0#")))
	require.NoError(t, s.PutPost(ctx, post(entity, "b", "v1", "https://tent.io/types/status/v0#reply")))
	require.NoError(t, s.PutPost(ctx, post(entity, "c", "v1", "https://tent.io/types/essay/v0#")))
	require.NoError(t, s.PutPost(ctx, post(entity, "a", "v2", "https://tent.io/types/status/v0#")))
	require.NoError(t, s.PutPost(ctx, post("http://other", "d", "v1", "https://tent.io/types/status/v0#")))

	all, err := s.Feed(ctx, entity, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "v2", all[0].VersionID)

	statuses, err := s.Feed(ctx, entity, []string{"https://tent.io/types/status/v0"}, 0)
	require.NoError(t, err)
	assert.Len(t, statuses, 2)

	exact, err := s.Feed(ctx, entity, []string{"https://tent.io/types/status/v0#reply"}, 0)
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, "b", exact[0].ID)

	limited, err := s.Feed(ctx, entity, nil, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		in      string
		dsn     string
		wantErr bool
	}{
		{"sqlite3://:memory:", ":memory:", false},
		{"sqlite://./peer.db", "./peer.db", false},
		{"sqlite:peer.db", "peer.db", false},
		{"sqlite3://", "", true},
		{"postgres://localhost/tent", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			driver, dsn, err := parseConnectionString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "sqlite3", driver)
			assert.Equal(t, tt.dsn, dsn)
		})
	}
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(context.Background(), "sqlite3://:memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.CreateUser(context.Background(), &User{Name: "a", Entity: "e", MetaPostID: "m"}))
	_, err = s.User(context.Background(), "a")
	assert.NoError(t, err)
}
