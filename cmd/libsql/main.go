package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
)

// logOptions are shared by every sub-command.
type logOptions struct {
	Level  string `long:"log.level" env:"LIBSQL_LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Logging level"`
	Format string `long:"log.format" env:"LIBSQL_LOG_FORMAT" default:"text" choice:"text" choice:"json" description:"Logging output format"`
}

var logConfig logOptions

// setupLogger installs the process-wide slog logger. Logs go to stderr so
// that the output of shell and token stays clean.
func setupLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(logConfig.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if logConfig.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func main() {
	parser := flags.NewParser(nil, flags.Default)
	parser.LongDescription = `libsql is a client and server for libsql databases.

	See --help pages of each sub-command for documentation and usage examples.
	`
	mustAdd(parser.AddGroup("Logging", "", &logConfig))
	mustAdd(parser.AddCommand("shell", "Run SQL against a database", `
Run SQL statements against a local file, a replica or a remote server.
Statements are read from --command or from standard input and end with a
semicolon. The dot commands .commit, .rollback, .sync, .mode, .target and
.quit are recognized on their own line.
`, &cmdShell{}))
	mustAdd(parser.AddCommand("serve", "Serve databases over HTTP", `
Serve the pipeline and replication protocols for every namespace under the
data directory. Settings are read from --config and overridden by flags.
`, &cmdServe{}))
	mustAdd(parser.AddCommand("token", "Issue an access token", `
Sign a bearer token with the server's secret key. The key file is created if
it does not exist.
`, &cmdToken{}))
	mustAdd(parser.AddCommand("bench", "Measure statement round trips", `
Run "SELECT 1" repeatedly against a target and report the rate.
`, &cmdBench{}))

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func mustAdd[T any](_ T, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to register command: %v\n", err)
		os.Exit(1)
	}
}
