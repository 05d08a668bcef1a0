// Package store is the host key-value storage seen by a contract instance.
//
// Reads and writes go through a Tx that buffers every mutation until Commit,
// which hands the whole write set to the Backend in one atomic Apply. A call
// that fails before Commit leaves the backend untouched.
//
// Backends may be shared by several processes. Every Tx remembers what it
// read, and Apply refuses to commit with ErrConflict when any of those keys
// changed in between.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

type Tier uint8

const (
	// Instance holds singleton fields: admin, counters, fee state.
	Instance Tier = iota
	// Persistent holds per-entity records.
	Persistent
)

func (t Tier) String() string {
	if t == Instance {
		return "instance"
	}
	return "persistent"
}

type Key struct {
	Tier Tier
	Name string
}

func InstanceKey(name string) Key {
	return Key{Tier: Instance, Name: name}
}

func PersistentKey(prefix string, parts ...any) Key {
	name := prefix
	for _, p := range parts {
		name += fmt.Sprintf(":%v", p)
	}
	return Key{Tier: Persistent, Name: name}
}

func (k Key) String() string {
	return k.Tier.String() + ":" + k.Name
}

// Write is one buffered mutation. Delete writes carry no value.
type Write struct {
	Key    Key
	Value  []byte
	Delete bool
}

// Read is the value a transaction observed for a key.
type Read struct {
	Key   Key
	Value []byte
	Found bool
}

// Matches reports whether the current value of a key is still the one read.
func (r Read) Matches(value []byte, found bool) bool {
	return r.Found == found && bytes.Equal(r.Value, value)
}

// ErrConflict is returned by Apply when a read key changed before commit.
var ErrConflict = errors.New("store: concurrent modification")

// Backend is the persistent storage behind a contract instance.
type Backend interface {
	Load(ctx context.Context, key Key) ([]byte, bool, error)
	// Apply commits all writes atomically, in order, provided every read
	// still matches. Otherwise it writes nothing and returns ErrConflict.
	Apply(ctx context.Context, reads []Read, writes []Write) error
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

// Tx is a write-buffered view of a Backend. Not safe for concurrent use.
type Tx struct {
	backend Backend
	pending map[Key]Write
	order   []Key
	reads   map[Key]Read
	done    bool
}

func Begin(backend Backend) *Tx {
	return &Tx{
		backend: backend,
		pending: make(map[Key]Write),
		reads:   make(map[Key]Read),
	}
}

func (tx *Tx) load(ctx context.Context, key Key) ([]byte, bool, error) {
	if w, ok := tx.pending[key]; ok {
		if w.Delete {
			return nil, false, nil
		}
		return w.Value, true, nil
	}
	if r, ok := tx.reads[key]; ok {
		return r.Value, r.Found, nil
	}
	data, ok, err := tx.backend.Load(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}
	tx.reads[key] = Read{Key: key, Value: data, Found: ok}
	return data, ok, nil
}

// Get decodes the value stored at key into v.
func (tx *Tx) Get(ctx context.Context, key Key, v any) (bool, error) {
	data, ok, err := tx.load(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (tx *Tx) Has(ctx context.Context, key Key) (bool, error) {
	_, ok, err := tx.load(ctx, key)
	return ok, err
}

func (tx *Tx) Set(key Key, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	tx.put(Write{Key: key, Value: data})
	return nil
}

func (tx *Tx) Remove(key Key) {
	tx.put(Write{Key: key, Delete: true})
}

func (tx *Tx) put(w Write) {
	if _, seen := tx.pending[w.Key]; !seen {
		tx.order = append(tx.order, w.Key)
	}
	tx.pending[w.Key] = w
}

// Pending returns the number of keys the transaction would write.
func (tx *Tx) Pending() int {
	return len(tx.order)
}

// Commit applies the buffered writes. A Tx commits at most once.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return fmt.Errorf("store: transaction already finished")
	}
	tx.done = true
	if len(tx.order) == 0 {
		return nil
	}
	writes := make([]Write, 0, len(tx.order))
	for _, k := range tx.order {
		writes = append(writes, tx.pending[k])
	}
	if err := tx.backend.Apply(ctx, tx.ReadSet(), writes); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReadSet returns the first observed value of every key loaded from the
// backend, sorted by key.
func (tx *Tx) ReadSet() []Read {
	reads := make([]Read, 0, len(tx.reads))
	for _, r := range tx.reads {
		reads = append(reads, r)
	}
	slices.SortFunc(reads, func(a, b Read) int {
		return strings.Compare(a.Key.String(), b.Key.String())
	})
	return reads
}

// Discard drops the buffered writes.
func (tx *Tx) Discard() {
	tx.done = true
	tx.pending = nil
	tx.order = nil
	tx.reads = nil
}
