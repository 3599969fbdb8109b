package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hybrid-grid-bot-go/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // Must be less than pongWait
)

// klineMessage 是币安 <symbol>@kline_<interval> 推送的消息
type klineMessage struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  struct {
		OpenTime  int64       `json:"t"`
		CloseTime int64       `json:"T"`
		Interval  string      `json:"i"`
		Open      json.Number `json:"o"`
		High      json.Number `json:"h"`
		Low       json.Number `json:"l"`
		Close     json.Number `json:"c"`
		Volume    json.Number `json:"v"`
		Closed    bool        `json:"x"`
	} `json:"k"`
}

// KlineStream 订阅K线推送，只转发已收盘的K线，断线后自动重连
type KlineStream struct {
	URL            string
	ReconnectDelay time.Duration
	logger         *zap.Logger
	lastOpen       int64
}

// IntervalDuration 将币安K线周期（1m、4h、1d、1w）转换为时长，不支持按月的 1M
func IntervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("无效的K线周期 %q", interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("无效的K线周期 %q", interval)
	}
	switch interval[len(interval)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("不支持的K线周期 %q", interval)
}

// StreamURL 拼接单一交易对的K线订阅地址
func StreamURL(base, symbol, interval string) string {
	return fmt.Sprintf("%s/%s@kline_%s", strings.TrimRight(base, "/"), strings.ToLower(symbol), interval)
}

func NewKlineStream(base, symbol, interval string, logger *zap.Logger) *KlineStream {
	return &KlineStream{
		URL:            StreamURL(base, symbol, interval),
		ReconnectDelay: 5 * time.Second,
		logger:         logger,
	}
}

// Run 维持连接直到ctx结束，结束时关闭out
func (s *KlineStream) Run(ctx context.Context, out chan<- models.Bar) {
	defer close(out)
	for {
		if ctx.Err() != nil {
			s.logger.Info("WebSocket循环已停止。")
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.URL, nil)
		if err != nil {
			s.logger.Sugar().Warnf("WebSocket连接失败: %v。%s后重试...", err, s.ReconnectDelay)
			if !sleep(ctx, s.ReconnectDelay) {
				return
			}
			continue
		}

		s.logger.Info("WebSocket连接成功。", zap.String("url", s.URL))
		if err := s.handleMessages(ctx, conn, out); err != nil {
			s.logger.Sugar().Warnf("WebSocket处理时发生错误: %v", err)
		}
		conn.Close()
		if !sleep(ctx, s.ReconnectDelay) {
			return
		}
		s.logger.Info("WebSocket连接已断开，准备重连...")
	}
}

// handleMessages 处理一个已建立的连接，并实现心跳机制
func (s *KlineStream) handleMessages(ctx context.Context, conn *websocket.Conn, out chan<- models.Bar) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					s.logger.Sugar().Warnf("发送Ping失败: %v", err)
					return
				}
			case <-ctx.Done():
				// 优雅关闭，读取端随之返回
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("读取消息失败: %w", err)
		}

		bar, ok, err := parseKline(message)
		if err != nil {
			s.logger.Sugar().Warnf("解析K线消息失败: %v", err)
			continue
		}
		if !ok || bar.Timestamp.UnixMilli() <= s.lastOpen {
			continue
		}
		s.lastOpen = bar.Timestamp.UnixMilli()

		select {
		case out <- bar:
		case <-ctx.Done():
			return nil
		}
	}
}

// parseKline 返回已收盘的K线；未收盘时 ok 为 false
func parseKline(message []byte) (models.Bar, bool, error) {
	var msg klineMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return models.Bar{}, false, err
	}
	if msg.Event != "kline" || !msg.Kline.Closed {
		return models.Bar{}, false, nil
	}
	k := msg.Kline
	var vals [5]float64
	for i, n := range []json.Number{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := n.Float64()
		if err != nil {
			return models.Bar{}, false, fmt.Errorf("转换价格失败: %w", err)
		}
		vals[i] = v
	}
	return models.Bar{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, true, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
