package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"isolend/storage"
)

// ErrClosed is returned when a manager is used after Commit or Discard.
var ErrClosed = errors.New("state: manager already committed or discarded")

// Manager is a write overlay over a storage.Database. Reads see the overlay
// first; nothing reaches the database until Commit writes every change in a
// single batch.
type Manager struct {
	db      storage.Database
	dirty   map[string][]byte
	deleted map[string]struct{}
	closed  bool
}

// NewManager opens an overlay on db.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	if m.closed {
		return nil, ErrClosed
	}
	k := string(hashed)
	if v, ok := m.dirty[k]; ok {
		return v, nil
	}
	if _, ok := m.deleted[k]; ok {
		return nil, nil
	}
	v, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func (m *Manager) put(hashed, value []byte) error {
	if m.closed {
		return ErrClosed
	}
	k := string(hashed)
	delete(m.deleted, k)
	m.dirty[k] = append([]byte(nil), value...)
	return nil
}

func (m *Manager) remove(hashed []byte) error {
	if m.closed {
		return ErrClosed
	}
	k := string(hashed)
	delete(m.dirty, k)
	m.deleted[k] = struct{}{}
	return nil
}

// KVPut RLP-encodes value and stores it under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.remove(kvKey(key))
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := m.get(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.put(hashed, encoded)
}

// KVGetList decodes the list stored under key into out, which must point to a
// slice. A missing key yields an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// Dirty reports the number of pending writes and deletes.
func (m *Manager) Dirty() int {
	return len(m.dirty) + len(m.deleted)
}

// Digest commits to the pending write set: a blake3 hash over every changed
// key in sorted order with its value, or a tombstone for deletes.
func (m *Manager) Digest() [32]byte {
	keys := make([]string, 0, m.Dirty())
	for k := range m.dirty {
		keys = append(keys, k)
	}
	for k := range m.deleted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := blake3.New(32, nil)
	var length [8]byte
	for _, k := range keys {
		h.Write([]byte(k))
		v, ok := m.dirty[k]
		if !ok {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		binary.BigEndian.PutUint64(length[:], uint64(len(v)))
		h.Write(length[:])
		h.Write(v)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Commit writes the overlay to the database in one batch and returns the
// write-set digest. The manager cannot be used afterwards.
func (m *Manager) Commit() ([32]byte, error) {
	if m.closed {
		return [32]byte{}, ErrClosed
	}
	digest := m.Digest()
	batch := new(storage.Batch)
	for k, v := range m.dirty {
		batch.Put([]byte(k), v)
	}
	for k := range m.deleted {
		batch.Delete([]byte(k))
	}
	if err := m.db.Write(batch); err != nil {
		return [32]byte{}, fmt.Errorf("state: commit: %w", err)
	}
	m.closed = true
	m.dirty = nil
	m.deleted = nil
	return digest, nil
}

// Discard drops every pending change.
func (m *Manager) Discard() {
	m.closed = true
	m.dirty = nil
	m.deleted = nil
}
