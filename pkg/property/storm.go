package property

import (
	"errors"
	"fmt"
	"sort"

	"github.com/asdine/storm"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// StormStore is a Store backed by a storm (BoltDB) database file.
type StormStore struct {
	db *storm.DB
}

// OpenStormStore opens or creates the database at path.
func OpenStormStore(path string) (*StormStore, error) {
	db, err := storm.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open property db: %w", err)
	}
	if err := db.Init(&Object{}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init property db: %w", err)
	}
	return &StormStore{db: db}, nil
}

// Get returns the properties of (device, name).
func (s *StormStore) Get(device, name string) (Object, error) {
	var obj Object
	if err := s.db.One("Key", ObjectKey(device, name), &obj); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return Object{}, ErrNotFound
		}
		return Object{}, err
	}
	return obj, nil
}

// Put creates or replaces the properties of one object.
func (s *StormStore) Put(obj Object) error {
	obj.Device = wire.NormalizeName(obj.Device)
	obj.Key = ObjectKey(obj.Device, obj.Name)
	return s.db.Save(&obj)
}

// List returns all objects stored for device, sorted by key.
func (s *StormStore) List(device string) ([]Object, error) {
	var objs []Object
	if err := s.db.Find("Device", wire.NormalizeName(device), &objs); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	return objs, nil
}

// Close closes the database.
func (s *StormStore) Close() error {
	return s.db.Close()
}

var _ Store = (*StormStore)(nil)
