// Package moduletable implements the local module registry: a
// persistent table keyed by module name, storing the IPC file path,
// pid, and status of the process that last registered that name, on
// top of an embedded key-value store
// (github.com/dgraph-io/badger/v4) so no separate storage process is
// required.
package moduletable

import (
	"fmt"
	"os"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Status is a module's last-known liveness.
type Status int

const (
	StatusUnknown Status = iota
	StatusRunning
	StatusNotRunning
)

// Entry is one module's registry record, stored msgpack-encoded per
// value.
type Entry struct {
	Name    string `msgpack:"name"`
	IPCFile string `msgpack:"ipc_file"`
	Pid     int    `msgpack:"pid"`
	Status  Status `msgpack:"status"`
}

var (
	// ErrNotFound is returned by Query for a name with no entry.
	ErrNotFound = fmt.Errorf("moduletable: no such module")
	// ErrExists is returned by Add when the name already has an entry
	// whose process is still alive.
	ErrExists = fmt.Errorf("moduletable: module already registered and alive")
	// ErrReadOnly is returned by a mutating call on a read-only table.
	ErrReadOnly = fmt.Errorf("moduletable: table opened read-only")
)

// Table is a persistent, single-writer module registry. Every exported
// method is internally synchronized; db is a *badger.DB, which is
// already safe for concurrent use, so mu here only serializes the
// read-modify-write sequence Add/Update/Delete need.
type Table struct {
	db       *badger.DB
	mu       sync.Mutex
	readOnly bool
}

// Options configures Open.
type Options struct {
	Path         string
	ReadOnly     bool
	CreateAbsent bool
}

// Open opens (or, with CreateAbsent, creates) the table at opts.Path.
func Open(opts Options) (*Table, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("moduletable: path is required")
	}
	if !opts.CreateAbsent && !opts.ReadOnly {
		if _, err := os.Stat(opts.Path); os.IsNotExist(err) {
			return nil, fmt.Errorf("moduletable: %s does not exist and create_absent is false", opts.Path)
		}
	}

	badgerOpts := badger.DefaultOptions(opts.Path).WithReadOnly(opts.ReadOnly).WithLogger(nil)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("moduletable: open %s: %w", opts.Path, err)
	}
	return &Table{db: db, readOnly: opts.ReadOnly}, nil
}

func (t *Table) Close() error { return t.db.Close() }

// Add inserts a new entry. If a live entry already exists for the name,
// Add fails with ErrExists; if the stored entry's pid is no longer
// alive, Add overwrites it — a prior run that crashed without
// deregistering should not block a fresh start under the same name.
func (t *Table) Add(e Entry) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, err := t.queryLocked(e.Name)
	if err == nil && processAlive(existing.Pid) {
		return ErrExists
	}
	return t.putLocked(e)
}

// Update upserts an entry unconditionally.
func (t *Table) Update(e Entry) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.putLocked(e)
}

// Delete removes an entry; deleting an absent name is not an error.
func (t *Table) Delete(name string) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(name))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Has reports whether name has an entry.
func (t *Table) Has(name string) bool {
	_, err := t.Query(name)
	return err == nil
}

// Query returns the entry for name, or ErrNotFound.
func (t *Table) Query(name string) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queryLocked(name)
}

func (t *Table) queryLocked(name string) (Entry, error) {
	var e Entry
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &e)
		})
	})
	return e, err
}

// QueryAll returns every entry currently in the table.
func (t *Table) QueryAll() ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var entries []Entry
	err := t.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var e Entry
			if err := item.Value(func(val []byte) error { return msgpack.Unmarshal(val, &e) }); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

func (t *Table) putLocked(e Entry) error {
	buf, err := msgpack.Marshal(e)
	if err != nil {
		return err
	}
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(e.Name), buf)
	})
}

// processAlive probes a pid for liveness: signaling 0 checks existence
// without affecting the target process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscallSignalZero()) == nil
}
