// Package storeselect maps config.Core's `file_store`/`file_store_path`
// pair (spec.md §6) onto a concrete eventstream.FileStore, the same
// explicit-tag-dispatch idiom runtime.Registry and llm.Registry use for
// their own config-selected collaborators — kept as a plain switch here
// rather than a registered-factory Registry because, unlike runtime and
// llm backends, each store package takes a differently-shaped
// constructor argument (a root directory, a client, a bucket URL) that
// config's single FileStorePath string has to be reinterpreted for.
package storeselect

import (
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/eventstream"
	"github.com/agentrt/agentrt/eventstream/store/bbolt"
	"github.com/agentrt/agentrt/eventstream/store/cos"
	"github.com/agentrt/agentrt/eventstream/store/local"
	"github.com/agentrt/agentrt/eventstream/store/redis"
	"github.com/agentrt/agentrt/eventstream/store/sqlite"
)

// Tags recognized in config.Core.FileStore. Empty defaults to Local.
const (
	Local  = "local"
	SQLite = "sqlite"
	BBolt  = "bbolt"
	Redis  = "redis"
	COS    = "cos"
)

// Open builds the FileStore tag names, using path as that backend's one
// required locator: a root directory for Local, a database file for
// SQLite/BBolt, a "host:port" address for Redis, or a bucket URL for
// COS. Backends with their own Close method (SQLite, BBolt) are
// returned behind the plain eventstream.FileStore interface; callers
// that need to release the underlying handle should type-assert for an
// io.Closer, matching how database/sql-style resources are usually
// surfaced.
func Open(tag, path string) (eventstream.FileStore, error) {
	switch tag {
	case "", Local:
		return local.New(path)
	case SQLite:
		return sqlite.Open(path)
	case BBolt:
		return bbolt.Open(path)
	case Redis:
		client := goredis.NewClient(&goredis.Options{
			Addr:        path,
			DialTimeout: 5 * time.Second,
		})
		return redis.New(client, "agentrt:"), nil
	case COS:
		return cos.New(path)
	default:
		return nil, errs.NewConfigurationError("unknown file_store "+tag, nil)
	}
}
