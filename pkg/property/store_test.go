package property

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tango-controls/tango-go/pkg/wire"
)

func storeImplementations(t *testing.T) map[string]Store {
	t.Helper()
	ss, err := OpenStormStore(filepath.Join(t.TempDir(), "props.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"storm":  ss,
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get("sys/tg_test/1", "double_scalar")
			assert.True(t, errors.Is(err, ErrNotFound), "err = %v", err)
		})
	}
}

func TestStorePutGet(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			obj := Object{
				Device:     "Sys/TG_Test/1",
				Name:       "double_scalar",
				PollPeriod: 250 * time.Millisecond,
				Events:     wire.EventProperties{AbsChange: 1.5, ArchivePeriod: time.Second},
				HasEvents:  true,
			}
			require.NoError(t, s.Put(obj))

			got, err := s.Get("sys/tg_test/1", "DOUBLE_SCALAR")
			require.NoError(t, err)
			assert.Equal(t, 250*time.Millisecond, got.PollPeriod)
			assert.Equal(t, 1.5, got.Events.AbsChange)
			assert.Equal(t, time.Second, got.Events.ArchivePeriod)
			assert.True(t, got.Polled())
		})
	}
}

func TestStoreListAndUpdate(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := Update(s, "sys/tg_test/1", "long_scalar", func(o *Object) { o.PollPeriod = time.Second })
			require.NoError(t, err)
			_, err = Update(s, "sys/tg_test/1", "double_scalar", func(o *Object) { o.PollPeriod = 3 * time.Second })
			require.NoError(t, err)
			_, err = Update(s, "sys/tg_test/2", "double_scalar", func(o *Object) { o.PollPeriod = time.Second })
			require.NoError(t, err)

			// Update keeps fields the callback does not touch.
			obj, err := Update(s, "sys/tg_test/1", "long_scalar", func(o *Object) { o.HasEvents = true })
			require.NoError(t, err)
			assert.Equal(t, time.Second, obj.PollPeriod)

			list, err := s.List("sys/tg_test/1")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "double_scalar", list[0].Name)
			assert.Equal(t, "long_scalar", list[1].Name)

			empty, err := s.List("sys/none/1")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestStormStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.db")
	s, err := OpenStormStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(Object{Device: "sys/tg_test/1", Name: "State", Type: ObjectCommand, PollPeriod: time.Second}))
	require.NoError(t, s.Close())

	s, err = OpenStormStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get("sys/tg_test/1", "state")
	require.NoError(t, err)
	assert.Equal(t, ObjectCommand, got.Type)
	assert.Equal(t, time.Second, got.PollPeriod)
}

func TestParseObjectType(t *testing.T) {
	typ, ok := ParseObjectType("command")
	assert.True(t, ok)
	assert.Equal(t, ObjectCommand, typ)
	assert.Equal(t, "attribute", ObjectAttribute.String())
	_, ok = ParseObjectType("pipe")
	assert.False(t, ok)
}
