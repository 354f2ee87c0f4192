package replaystate

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildFromDSN selects a Store implementation by DSN scheme: an empty dsn
// or a bare file path uses FileStore at filePath; "postgres://..." or
// "postgresql://..." uses PostgresStore.
func BuildFromDSN(dsn, filePath string) (Store, error) {
	if dsn == "" {
		return NewFileStore(filePath), nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("replaystate: invalid dsn: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "", "file":
		return NewFileStore(filePath), nil
	case "postgres", "postgresql":
		return NewPostgresStore(dsn, "", "")
	default:
		return nil, fmt.Errorf("replaystate: unsupported dsn scheme %q", u.Scheme)
	}
}
