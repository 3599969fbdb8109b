package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hybrid-grid-bot-go/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const csvData = `open_time,open,high,low,close,volume,close_time,quote_asset_volume,number_of_trades,taker_buy_base_asset_volume,taker_buy_quote_asset_volume
1748822400000,100,101,99,100.5,12,1748822459999,0,0,0,0
1748822460000,100.5,102,100,101.5,8,1748822519999,0,0,0,0
1748822520000,bad,102,100,101.5,8,1748822579999,0,0,0,0
1748822460000,100.5,102,100,101.5,8,1748822519999,0,0,0,0
1748822580000,101.5,103,101,102,5,1748822639999,0,0,0,0
`

func TestParseCSV(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, bars, 3, "malformed and repeated rows are skipped")

	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), bars[0].Timestamp)
	assert.Equal(t, models.Bar{
		Timestamp: time.Date(2025, 6, 2, 0, 3, 0, 0, time.UTC),
		Open:      101.5, High: 103, Low: 101, Close: 102, Volume: 5,
	}, bars[2])

	_, err = ParseCSV(strings.NewReader(strings.Join(Header, ",") + "\n"))
	assert.ErrorIs(t, err, ErrNoBars)
}

func TestParseRecordErrors(t *testing.T) {
	_, err := ParseRecord([]string{"1", "2"})
	assert.Error(t, err)
	_, err = ParseRecord([]string{"x", "1", "1", "1", "1", "1"})
	assert.Error(t, err)
}

func klineJSON(openMs int64, close float64, closed bool) string {
	return fmt.Sprintf(`{"e":"kline","E":%d,"s":"BTCUSDT","k":{"t":%d,"T":%d,"s":"BTCUSDT","i":"1m","o":"100","c":"%g","h":"105","l":"95","v":"3.5","x":%t}}`,
		openMs+60000, openMs, openMs+59999, close, closed)
}

func TestParseKline(t *testing.T) {
	bar, ok, err := parseKline([]byte(klineJSON(1748822400000, 101.25, true)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 101.25, bar.Close)
	assert.Equal(t, 95.0, bar.Low)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), bar.Timestamp)

	_, ok, err = parseKline([]byte(klineJSON(1748822400000, 101.25, false)))
	require.NoError(t, err)
	assert.False(t, ok, "open klines are not forwarded")

	_, _, err = parseKline([]byte(`{"e":"kline","k":{"x":true,"o":"abc"}}`))
	assert.Error(t, err)
}

func TestStreamURL(t *testing.T) {
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@kline_1m",
		StreamURL("wss://stream.binance.com:9443/ws/", "BTCUSDT", "1m"))
}

func TestIntervalDuration(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	} {
		got, err := IntervalDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "m", "0m", "1M", "xh"} {
		_, err := IntervalDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestKlineStreamReconnectsAndForwardsClosedBars(t *testing.T) {
	var connections int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/btcusdt@kline_1m", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msgs []string
		first := atomic.AddInt32(&connections, 1) == 1
		if first {
			msgs = []string{
				klineJSON(1748822400000, 100.5, false),
				klineJSON(1748822400000, 101, true),
				`not json`,
				klineJSON(1748822400000, 101, true),
			}
		} else {
			msgs = []string{
				klineJSON(1748822400000, 101, true),
				klineJSON(1748822460000, 102, true),
			}
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if first {
			// drop the first connection once written to force a reconnect
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	stream := NewKlineStream(wsBase, "BTCUSDT", "1m", zap.NewNop())
	stream.ReconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan models.Bar)
	go stream.Run(ctx, out)

	first := <-out
	assert.Equal(t, 101.0, first.Close)

	select {
	case second := <-out:
		assert.Equal(t, 102.0, second.Close, "already forwarded bars are not repeated after reconnect")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for bar after reconnect")
	}

	cancel()
	for range out {
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&connections), int32(2))
}
