package interpreter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NotCoffee418/p1_mini/pkg/obis"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestReadingJson(t *testing.T) {
	r := &Reading{Timestamp: 1700000000000, Name: "energy", Obis: "1.8.0", Value: 1234.567, Unit: "kWh"}
	b := r.ToJsonBytes()
	assert.JSONEq(t, `{"timestamp":1700000000000,"name":"energy","obis":"1.8.0","value":1234.567,"unit":"kWh"}`, string(b))
	assert.Equal(t, r, ReadingFromJsonBytes(b))

	assert.Nil(t, ReadingFromJsonBytes([]byte("not json")))
	assert.Nil(t, ReadingFromJsonBytes([]byte(`{"value":1}`)))
}

func TestSensorPublishes(t *testing.T) {
	store := NewStore()
	var got []*Reading
	s := NewSensor("voltage_l1", obis.New(32, 7, 0), "V", store)
	s.AddPublisher(PublisherFunc(func(r *Reading) { got = append(got, r) }))
	s.now = func() time.Time { return time.UnixMilli(42) }

	s.Deliver(231.4)
	s.Deliver(230.9)

	require.Len(t, got, 2)
	assert.Equal(t, Reading{Timestamp: 42, Name: "voltage_l1", Obis: "32.7.0", Value: 230.9, Unit: "V"}, *got[1])
	latest, ok := store.Get("voltage_l1")
	require.True(t, ok)
	assert.Equal(t, 230.9, latest.Value)
}

func TestStoreLatestSorted(t *testing.T) {
	store := NewStore()
	store.Publish(&Reading{Name: "b", Value: 2})
	store.Publish(&Reading{Name: "a", Value: 1})
	store.Publish(&Reading{Name: "b", Value: 3})

	latest := store.Latest()
	require.Len(t, latest, 2)
	assert.Equal(t, "a", latest[0].Name)
	assert.Equal(t, 3.0, latest[1].Value)
	_, ok := store.Get("c")
	assert.False(t, ok)
}

func TestHubLatest(t *testing.T) {
	store := NewStore()
	srv := httptest.NewServer(NewHub(store, zaptest.NewLogger(t)).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/latest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	store.Publish(&Reading{Name: "energy", Obis: "1.8.0", Value: 1})
	resp, err = http.Get(srv.URL + "/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var readings []Reading
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&readings))
	assert.Equal(t, []Reading{{Name: "energy", Obis: "1.8.0", Value: 1}}, readings)
}

func TestHubBroadcast(t *testing.T) {
	store := NewStore()
	hub := NewHub(store, zaptest.NewLogger(t))
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	store.Publish(&Reading{Name: "energy", Value: 1})
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	// Current values first
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "energy", ReadingFromJsonBytes(msg).Name)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(&Reading{Name: "power", Value: 0.5})
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, &Reading{Name: "power", Value: 0.5}, ReadingFromJsonBytes(msg))

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStartListener(t *testing.T) {
	hub := NewHub(NewStore(), zaptest.NewLogger(t))
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan *Reading, 1)
	result := make(chan error, 1)
	go func() {
		result <- StartListener(ctx, ListenerURL(strings.TrimPrefix(srv.URL, "http://"), false), zaptest.NewLogger(t), func(r *Reading) {
			received <- r
		})
	}()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	hub.Publish(&Reading{Name: "energy", Value: 12})
	select {
	case r := <-received:
		assert.Equal(t, 12.0, r.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("no reading received")
	}

	cancel()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListenerURL(t *testing.T) {
	assert.Equal(t, "ws://meter:9039/ws", ListenerURL("meter:9039", false))
	assert.Equal(t, "wss://meter:9039/ws", ListenerURL("meter:9039", true))
}

func TestHubPublishDoesNotBlockOnStalledClient(t *testing.T) {
	hub := NewHub(NewStore(), zaptest.NewLogger(t))
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	// Connected but never reads
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	big := &Reading{Name: strings.Repeat("x", 4096), Value: 1}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20000; i++ {
			hub.Publish(big)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a client that stopped reading")
	}
	assert.Equal(t, 0, hub.ClientCount())

	// Other clients keep receiving
	other, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer other.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(&Reading{Name: "power", Value: 0.5})
	_, msg, err := other.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "power", ReadingFromJsonBytes(msg).Name)
}
