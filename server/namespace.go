package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/tomyedwab/libsqlgo/replication"
)

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// namespace is one database file and its frame log.
type namespace struct {
	name string
	path string
	db   *sqlx.DB
}

// namespace returns the open database of name, opening it on first use.
func (s *Server) namespace(ctx context.Context, name string) (*namespace, error) {
	if !namespacePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid namespace %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.namespaces[name]; ok {
		return ns, nil
	}

	if err := os.MkdirAll(s.cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(s.cfg.DataDir, name+".db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL",
		path, s.cfg.BusyTimeout.Milliseconds())
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open namespace %s: %w", name, err)
	}
	if err := replication.InitFrames(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize namespace %s: %w", name, err)
	}

	ns := &namespace{name: name, path: path, db: db}
	s.namespaces[name] = ns
	s.logger.Info("Opened namespace", "namespace", name, "path", path)
	return ns, nil
}
