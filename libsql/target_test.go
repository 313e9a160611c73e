package libsql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name   string
		target string
		opts   []Option
		want   Target
	}{
		{
			name:   "memory",
			target: ":memory:",
			want:   Target{Mode: Local, Path: ":memory:"},
		},
		{
			name:   "file path",
			target: "data/app.db",
			want:   Target{Mode: Local, Path: "data/app.db"},
		},
		{
			name:   "sqlite uri keeps its own options",
			target: "file:app.db?mode=memory&cache=shared",
			want:   Target{Mode: Local, Path: "file:app.db?cache=shared&mode=memory"},
		},
		{
			name:   "replica from query",
			target: "app.db?sync_url=libsql://primary.example.com",
			want:   Target{Mode: Replica, Path: "app.db", SyncURL: "https://primary.example.com"},
		},
		{
			name:   "replica from option",
			target: "app.db",
			opts:   []Option{WithSyncURL("http://127.0.0.1:8080/"), WithNamespace("tenant")},
			want:   Target{Mode: Replica, Path: "app.db", SyncURL: "http://127.0.0.1:8080", Namespace: "tenant"},
		},
		{
			name:   "libsql scheme uses https",
			target: "libsql://db.example.com?authToken=abc",
			want:   Target{Mode: Remote, URL: "https://db.example.com", AuthToken: "abc"},
		},
		{
			name:   "libsql scheme without tls",
			target: "libsql://localhost:8080?tls=false",
			want:   Target{Mode: Remote, URL: "http://localhost:8080"},
		},
		{
			name:   "tls option",
			target: "libsql://localhost:8080",
			opts:   []Option{WithTLS(false), WithAuthToken("t")},
			want:   Target{Mode: Remote, URL: "http://localhost:8080", AuthToken: "t"},
		},
		{
			name:   "ws",
			target: "ws://localhost:8080",
			want:   Target{Mode: Remote, URL: "http://localhost:8080"},
		},
		{
			name:   "wss",
			target: "wss://db.example.com",
			want:   Target{Mode: Remote, URL: "https://db.example.com"},
		},
		{
			name:   "https trailing slash",
			target: "https://db.example.com/",
			want:   Target{Mode: Remote, URL: "https://db.example.com"},
		},
		{
			name:   "isolation level from query",
			target: ":memory:?isolation_level=immediate",
			want:   Target{Mode: Local, Path: ":memory:", IsolationLevel: Immediate},
		},
		{
			name:   "option overrides query",
			target: ":memory:?isolation_level=EXCLUSIVE",
			opts:   []Option{WithAutocommit()},
			want:   Target{Mode: Local, Path: ":memory:", IsolationLevel: Autocommit},
		},
		{
			name:   "option clears a bad query value",
			target: ":memory:?isolation_level=SERIALIZABLE",
			opts:   []Option{WithIsolationLevel(Deferred)},
			want:   Target{Mode: Local, Path: ":memory:"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTarget(tc.target, tc.opts...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseTargetErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		opts   []Option
	}{
		{"empty", "", nil},
		{"blank", "   ", nil},
		{"unknown scheme", "ftp://db.example.com", nil},
		{"no host", "http://", nil},
		{"unknown remote option", "libsql://db.example.com?bogus=1", nil},
		{"unknown local option", "app.db?bogus=1", nil},
		{"sync_url with remote", "libsql://db.example.com?sync_url=http://primary", nil},
		{"sync_url option with remote", "libsql://db.example.com", []Option{WithSyncURL("http://primary")}},
		{"namespace with local", "app.db?namespace=tenant", nil},
		{"bad isolation level", "app.db?isolation_level=SERIALIZABLE", nil},
		{"bad tls", "libsql://db.example.com?tls=maybe", nil},
		{"sync_url without host", "app.db", []Option{WithSyncURL("primary")}},
		{"sync_url bad scheme", "app.db", []Option{WithSyncURL("ftp://primary")}},
		{"query only", "?sync_url=http://primary", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTarget(tc.target, tc.opts...)
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestParseIsolationLevel(t *testing.T) {
	for in, want := range map[string]IsolationLevel{
		"":           Deferred,
		"deferred":   Deferred,
		"IMMEDIATE":  Immediate,
		"Exclusive":  Exclusive,
		"None":       Autocommit,
		"AUTOCOMMIT": Autocommit,
	} {
		got, err := ParseIsolationLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseIsolationLevel("READ COMMITTED")
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, "BEGIN IMMEDIATE", Immediate.beginStatement())
	assert.Equal(t, "None", Autocommit.String())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "local", Local.String())
	assert.Equal(t, "replica", Replica.String())
	assert.Equal(t, "remote", Remote.String())
}
