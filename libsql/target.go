package libsql

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/tomyedwab/libsqlgo/dberror"
)

// Mode is the backend a Connection is bound to.
type Mode int

const (
	Local Mode = iota
	Replica
	Remote
)

func (m Mode) String() string {
	switch m {
	case Replica:
		return "replica"
	case Remote:
		return "remote"
	}
	return "local"
}

// MemoryTarget is the target of a private in-memory database.
const MemoryTarget = ":memory:"

var remoteSchemes = map[string]bool{
	"libsql": true,
	"http":   true,
	"https":  true,
	"ws":     true,
	"wss":    true,
}

// Target is a resolved connection target.
type Target struct {
	Mode Mode
	// Path is the local database (Local and Replica): a file path, a sqlite
	// "file:" URI, or MemoryTarget.
	Path string
	// URL is the http(s) base URL of the server (Remote).
	URL string
	// SyncURL is the http(s) base URL of the primary (Replica).
	SyncURL        string
	AuthToken      string
	Namespace      string
	IsolationLevel IsolationLevel
}

// ParseTarget resolves a target string and options the way Connect does,
// without opening anything.
//
// The target is a path, MemoryTarget, a sqlite "file:" URI, or a URL with
// one of the schemes libsql, http, https, ws and wss. Paths and URLs may
// carry the options sync_url, auth_token (or authToken), isolation_level,
// namespace and tls in their query string; Options override them.
func ParseTarget(target string, opts ...Option) (Target, error) {
	t, _, err := resolve(target, opts)
	return t, err
}

func resolve(raw string, opts []Option) (Target, settings, error) {
	var (
		t      Target
		s      settings
		query  url.Values
		remote *url.URL
		isURI  bool
	)
	if strings.TrimSpace(raw) == "" {
		return t, s, dberror.Configuration("empty connection target")
	}

	lower := strings.ToLower(raw)
	if i := strings.Index(raw, "://"); i > 0 && isScheme(lower[:i]) && !strings.HasPrefix(lower, "file:") {
		scheme := lower[:i]
		if !remoteSchemes[scheme] {
			return t, s, dberror.Configuration("unsupported target scheme %q", scheme)
		}
		u, err := url.Parse(raw)
		if err != nil {
			return t, s, dberror.Configuration("invalid target %q: %v", raw, err)
		}
		if u.Host == "" {
			return t, s, dberror.Configuration("remote target %q has no host", raw)
		}
		query = u.Query()
		remote = u
		t.Mode = Remote
	} else {
		path, rawQuery, _ := strings.Cut(raw, "?")
		q, err := url.ParseQuery(rawQuery)
		if err != nil {
			return t, s, dberror.Configuration("invalid options in target %q: %v", raw, err)
		}
		query = q
		t.Path = path
		isURI = strings.HasPrefix(lower, "file:")
	}

	extra := url.Values{}
	for key, values := range query {
		v := values[len(values)-1]
		switch key {
		case "sync_url":
			s.syncURL = v
		case "auth_token", "authToken":
			s.authToken = v
		case "namespace":
			s.namespace = v
		case "isolation_level":
			s.isolation, s.isolationErr = ParseIsolationLevel(v)
		case "tls":
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				return t, s, dberror.Configuration("invalid tls option %q", v)
			}
			s.tls = &enabled
		default:
			extra[key] = values
		}
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.isolationErr != nil {
		return t, s, s.isolationErr
	}
	t.AuthToken = s.authToken
	t.Namespace = s.namespace
	t.IsolationLevel = s.isolation

	if remote != nil {
		if len(extra) > 0 {
			return t, s, unknownOption(extra)
		}
		if s.syncURL != "" {
			return t, s, dberror.Configuration("sync_url cannot be combined with remote target %q", remote.Host)
		}
		var err error
		if t.URL, err = httpURL(remote, s.tls); err != nil {
			return t, s, err
		}
		return t, s, nil
	}

	if len(extra) > 0 {
		if !isURI {
			return t, s, unknownOption(extra)
		}
		// Left for sqlite to interpret.
		t.Path += "?" + extra.Encode()
	}
	if t.Path == "" {
		return t, s, dberror.Configuration("empty database path")
	}
	if s.syncURL == "" {
		if s.namespace != "" {
			return t, s, dberror.Configuration("namespace requires a remote or replica target")
		}
		t.Mode = Local
		return t, s, nil
	}

	u, err := url.Parse(s.syncURL)
	if err != nil || u.Host == "" {
		return t, s, dberror.Configuration("invalid sync_url %q", s.syncURL)
	}
	if !remoteSchemes[strings.ToLower(u.Scheme)] {
		return t, s, dberror.Configuration("unsupported sync_url scheme %q", u.Scheme)
	}
	if t.SyncURL, err = httpURL(u, s.tls); err != nil {
		return t, s, err
	}
	t.Mode = Replica
	return t, s, nil
}

// httpURL maps a remote URL onto the http(s) base URL requests go to.
// libsql:// uses https unless TLS is disabled.
func httpURL(u *url.URL, tls *bool) (string, error) {
	out := *u
	if v := u.Query().Get("tls"); v != "" && tls == nil {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return "", dberror.Configuration("invalid tls option %q", v)
		}
		tls = &enabled
	}
	out.RawQuery = ""
	out.Fragment = ""

	switch strings.ToLower(u.Scheme) {
	case "libsql":
		out.Scheme = "https"
		if tls != nil && !*tls {
			out.Scheme = "http"
		}
	case "ws":
		out.Scheme = "http"
	case "wss":
		out.Scheme = "https"
	case "http", "https":
		out.Scheme = strings.ToLower(u.Scheme)
	default:
		return "", dberror.Configuration("unsupported scheme %q", u.Scheme)
	}
	return strings.TrimRight(out.String(), "/"), nil
}

// isScheme reports whether s is a URL scheme rather than part of a path,
// as in "app.db?sync_url=http://...".
func isScheme(s string) bool {
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

func unknownOption(extra url.Values) error {
	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return dberror.Configuration("unknown option %q", keys[0])
}
