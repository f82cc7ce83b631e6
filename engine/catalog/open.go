package catalog

import (
	"context"
	"fmt"
)

// Backend kinds accepted by Open.
const (
	KindSQLite = "sqlite"
	KindMemory = "memory"
	KindNeo4j  = "neo4j"
)

// Options selects and configures a catalog backend.
type Options struct {
	Kind      string
	Path      string
	Neo4jURL  string
	Neo4jUser string
	Neo4jPass string
}

// Open returns the backend named by opts.Kind.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Kind {
	case KindSQLite, "":
		path := opts.Path
		if path == "" {
			path = DefaultPath()
		}
		return OpenSQLite(path)
	case KindMemory:
		return NewMemoryCatalog(), nil
	case KindNeo4j:
		return OpenNeo4j(ctx, opts.Neo4jURL, opts.Neo4jUser, opts.Neo4jPass)
	default:
		return nil, fmt.Errorf("catalog: unknown backend %q", opts.Kind)
	}
}
