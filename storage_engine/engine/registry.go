package engine

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/shadowash0215/daemonsql/storage_engine/buffer"
	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
)

// Registry owns every Database currently open in this process. It is an
// explicit, constructed value rather than package-level state: a CLI or
// test harness creates one Registry and threads it through, so nothing in
// this package depends on a hidden global.
type Registry struct {
	mu   sync.Mutex
	root string // directory each database's file lives under
	dbs  map[string]*Database
}

// NewRegistry returns a Registry that stores database files under root,
// creating the directory if it does not already exist.
func NewRegistry(root string) (*Registry, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, dberrors.Wrap(dberrors.Failed, err, "create database root %s", root)
	}
	return &Registry{root: root, dbs: make(map[string]*Database)}, nil
}

func (r *Registry) pathFor(name string) string {
	return filepath.Join(r.root, name+".db")
}

// Create makes and registers a new database named name.
func (r *Registry) Create(name string) (*Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.dbs[name]; exists {
		return nil, dberrors.New(dberrors.AlreadyExist, "database %q already open", name)
	}
	path := r.pathFor(name)
	if _, err := os.Stat(path); err == nil {
		return nil, dberrors.New(dberrors.AlreadyExist, "database %q already exists on disk", name)
	}

	db, err := Create(name, path, buffer.DefaultPoolSize)
	if err != nil {
		return nil, err
	}
	r.dbs[name] = db
	return db, nil
}

// Open loads an on-disk database named name and registers it, if it is
// not already open.
func (r *Registry) Open(name string) (*Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, exists := r.dbs[name]; exists {
		return db, nil
	}
	path := r.pathFor(name)
	if _, err := os.Stat(path); err != nil {
		return nil, dberrors.New(dberrors.NotExist, "database %q does not exist", name)
	}
	db, err := Open(name, path, buffer.DefaultPoolSize)
	if err != nil {
		return nil, err
	}
	r.dbs[name] = db
	return db, nil
}

// Get returns an already-open database, without touching disk.
func (r *Registry) Get(name string) (*Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	db, exists := r.dbs[name]
	if !exists {
		return nil, dberrors.New(dberrors.NotExist, "database %q is not open", name)
	}
	return db, nil
}

// Drop closes (if open) and deletes name's database file.
func (r *Registry) Drop(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, exists := r.dbs[name]; exists {
		if err := db.Close(); err != nil {
			return err
		}
		delete(r.dbs, name)
	}
	path := r.pathFor(name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return dberrors.Wrap(dberrors.Failed, err, "remove database file %s", path)
	}
	return nil
}

// List names every database file under the registry root, open or not.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.Failed, err, "list database root %s", r.root)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const ext = ".db"
		if filepath.Ext(name) == ext {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// CloseAll closes every currently open database.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, db := range r.dbs {
		if err := db.Close(); err != nil {
			return err
		}
		delete(r.dbs, name)
	}
	return nil
}
