package syncstate

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/surfacelink/surfacelink-go/pkg/bus"
)

// mockStorage lets tests script and verify mirror traffic.
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Load(key string) ([]byte, error) {
	args := m.Called(key)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStorage) Store(key string, data []byte) error {
	args := m.Called(key, data)
	return args.Error(0)
}

func TestBridgeMirror(t *testing.T) {
	newBridge := func(t *testing.T, storage Storage) *Bridge {
		t.Helper()
		hub := bus.NewMemoryHub()
		t.Cleanup(hub.Close)
		b := bus.New("ctx-a", bus.Config{Medium: hub.Medium()})
		t.Cleanup(b.Close)
		br := New(b, storage, nil)
		t.Cleanup(br.Close)
		return br
	}

	t.Run("SetWritesMirror", func(t *testing.T) {
		storage := &mockStorage{}
		storage.On("Load", "mixer.zoom").Return(nil, ErrNotFound).Once()
		storage.On("Store", "mixer.zoom", []byte("1.5")).Return(nil).Once()

		br := newBridge(t, storage)
		if err := br.Set("mixer.zoom", 1.5); err != nil {
			t.Fatalf("Set: %v", err)
		}

		storage.AssertExpectations(t)
	})

	t.Run("GetHydratesFromMirror", func(t *testing.T) {
		storage := &mockStorage{}
		storage.On("Load", "mixer.zoom").Return([]byte("2.25"), nil).Once()

		br := newBridge(t, storage)

		var got float64
		found, err := br.Get("mixer.zoom", &got)
		if err != nil || !found || got != 2.25 {
			t.Errorf("Get = %v, %v, %v; want 2.25", got, found, err)
		}

		// Second Get must be served from memory, not the mirror.
		if _, err := br.Get("mixer.zoom", &got); err != nil {
			t.Fatalf("Get: %v", err)
		}
		storage.AssertExpectations(t)
	})

	t.Run("MirrorWriteFailureDoesNotBlockSet", func(t *testing.T) {
		storage := &mockStorage{}
		storage.On("Load", "mixer.zoom").Return(nil, ErrNotFound).Once()
		storage.On("Store", "mixer.zoom", mock.Anything).Return(errors.New("disk full"))

		br := newBridge(t, storage)
		if err := br.Set("mixer.zoom", 1.5); err != nil {
			t.Fatalf("Set should survive a mirror failure: %v", err)
		}

		// The in-memory value is still current.
		var got json.RawMessage
		found, err := br.Get("mixer.zoom", &got)
		if err != nil || !found {
			t.Errorf("Get = %v, %v", found, err)
		}
	})

	t.Run("CorruptMirrorDiscarded", func(t *testing.T) {
		storage := &mockStorage{}
		storage.On("Load", "mixer.zoom").Return([]byte("{not json"), nil).Once()

		br := newBridge(t, storage)

		var got json.RawMessage
		found, err := br.Get("mixer.zoom", &got)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if found {
			t.Error("corrupt mirror value should not hydrate")
		}
	})
}
