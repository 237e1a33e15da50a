// Package queryapi exposes a gin HTTP server over a set of open
// databases: fetch, info, update and a websocket stream of commit
// events, grounded on the teacher project's api package in structure
// (Handler/Hub/middleware/routes split) repurposed for RRD queries
// instead of probe targets.
package queryapi

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wellsgz/rrdb/internal/bytestore"
	"github.com/wellsgz/rrdb/internal/config"
	"github.com/wellsgz/rrdb/internal/rrd"
)

// Registry owns every database named in the configuration, opening them
// lazily and keeping them open for the life of the server.
type Registry struct {
	cfg *config.Config

	mu  sync.RWMutex
	dbs map[string]*rrd.Database
}

// NewRegistry builds an (initially empty) registry for cfg's databases.
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{cfg: cfg, dbs: make(map[string]*rrd.Database)}
}

// Path resolves a configured database name to its filesystem (or
// memory:) path.
func (r *Registry) Path(name string) (string, bool) {
	for _, db := range r.cfg.Databases {
		if db.Name == name {
			return r.resolvePath(db.Name), true
		}
	}
	return "", false
}

func (r *Registry) resolvePath(name string) string {
	if strings.HasPrefix(name, "memory:") || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.cfg.Global.DataDir, name)
}

// Open returns the already-open database for name, opening it on first
// use. If no file (or named memory store) exists yet at its resolved
// path, it is created from the configured schema, with its start time
// set to now.
func (r *Registry) Open(name string) (*rrd.Database, error) {
	r.mu.RLock()
	if db, ok := r.dbs[name]; ok {
		r.mu.RUnlock()
		return db, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.dbs[name]; ok {
		return db, nil
	}

	var dbCfg *config.DatabaseConfig
	for i := range r.cfg.Databases {
		if r.cfg.Databases[i].Name == name {
			dbCfg = &r.cfg.Databases[i]
			break
		}
	}
	if dbCfg == nil {
		return nil, fmt.Errorf("queryapi: database %q is not configured", name)
	}

	path := r.resolvePath(name)
	exists, err := databaseExists(path)
	if err != nil {
		return nil, fmt.Errorf("queryapi: checking %q: %w", path, err)
	}

	var db *rrd.Database
	if exists {
		db, err = rrd.Open(path)
	} else {
		var def rrd.Definition
		if def, err = dbCfg.Definition(path, time.Now().Unix()); err == nil {
			db, err = rrd.Create(def)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("queryapi: opening %q: %w", path, err)
	}
	r.dbs[name] = db
	return db, nil
}

// databaseExists reports whether path already names a database: a
// non-empty named memory store, or a file that exists on disk. A
// freshly registered (never-created) memory store reads as empty since
// OpenNamedMemoryStore always succeeds, so it can't be distinguished
// from a missing database by error alone the way a file open can.
func databaseExists(path string) (bool, error) {
	if name, ok := strings.CutPrefix(path, "memory:"); ok {
		return bytestore.OpenNamedMemoryStore(name).Len() > 0, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// OpenByPath resolves an already-registered database's backing path,
// useful as a processor.Opener over this same registry.
func (r *Registry) OpenByPath(path string) (*rrd.Database, error) {
	r.mu.RLock()
	for _, db := range r.dbs {
		if db.Path() == path {
			r.mu.RUnlock()
			return db, nil
		}
	}
	r.mu.RUnlock()
	return rrd.Open(path)
}

// Names returns every configured database name.
func (r *Registry) Names() []string {
	names := make([]string, len(r.cfg.Databases))
	for i, db := range r.cfg.Databases {
		names[i] = db.Name
	}
	return names
}

// CloseAll closes every opened database.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, db := range r.dbs {
		db.Close()
		delete(r.dbs, name)
	}
}
