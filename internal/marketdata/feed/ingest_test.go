package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supertrend-engine/internal/model"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// server sends msgs after reading the subscribe message, then holds the
// connection open until the client closes it.
func server(t *testing.T, gotSub chan<- SubscribeMessage, msgs ...string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub SubscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		gotSub <- sub
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(Config{URL: "http://localhost:9001/ws"})
	assert.Error(t, err)
	_, err = New(Config{URL: "::bad"})
	assert.Error(t, err)
}

func TestIngestStreamsValidTicks(t *testing.T) {
	subCh := make(chan SubscribeMessage, 1)
	srv := server(t, subCh,
		`{"instrument":"26009","ts":"2024-06-03T09:15:00Z","last_price":100.5,"last_qty":3,"ohlc":{"open":99,"high":101,"low":98,"close":100}}`,
		`not json`,
		`{"instrument":"","last_price":1}`,
		`{"instrument":"26009","last_price":0}`,
		`{"instrument":"26009","last_price":101}`,
	)
	defer srv.Close()

	ing, err := New(Config{URL: wsURL(srv), Instruments: []string{"26009"}})
	require.NoError(t, err)

	var mu sync.Mutex
	drops := map[string]int{}
	ing.OnDrop = func(reason string) {
		mu.Lock()
		drops[reason]++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	tickCh := make(chan model.Tick, 8)
	done := make(chan struct{})
	go func() {
		ing.Start(ctx, tickCh)
		close(done)
	}()

	sub := <-subCh
	assert.Equal(t, "subscribe", sub.Action)
	assert.Equal(t, []string{"26009"}, sub.Instruments)

	first := <-tickCh
	assert.Equal(t, 100.5, first.LastPrice)
	assert.Equal(t, 101.0, first.Day.High)
	assert.True(t, first.TS.Equal(time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)))

	second := <-tickCh
	assert.Equal(t, 101.0, second.LastPrice)
	assert.False(t, second.TS.IsZero(), "missing ts is stamped on receipt")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"parse_error": 1, "no_instrument": 1, "bad_price": 1}, drops)
}

func TestIngestReconnects(t *testing.T) {
	ing, err := New(Config{URL: "ws://127.0.0.1:1/ws", ReconnectDelay: 10 * time.Millisecond, MaxReconnectDelay: 20 * time.Millisecond})
	require.NoError(t, err)

	reconnects := make(chan struct{}, 16)
	ing.OnReconnect = func() { reconnects <- struct{}{} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.Start(ctx, make(chan model.Tick))

	for i := 0; i < 2; i++ {
		select {
		case <-reconnects:
		case <-time.After(2 * time.Second):
			t.Fatal("expected reconnect attempts")
		}
	}
}
