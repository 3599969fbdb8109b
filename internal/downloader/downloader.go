package downloader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hybrid-grid-bot-go/internal/feed"
	"hybrid-grid-bot-go/internal/logger"

	"github.com/adshao/go-binance/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	// batchLimit 币安单次请求最多返回1000条
	batchLimit = 1000
	// maxAttempts 单页请求的最大尝试次数
	maxAttempts = 3
)

// KlineDownloader 用于从币安下载K线数据
type KlineDownloader struct {
	client  *binance.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewKlineDownloader 创建一个新的下载器实例，公共接口不需要API Key
func NewKlineDownloader() *KlineDownloader {
	return &KlineDownloader{
		client:  binance.NewClient("", ""),
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		breaker: newBreaker("binance-klines"),
	}
}

// newBreaker 连续失败5次后熔断，30秒后半开试探
func newBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.S().Warnf("熔断器 %s 状态变化: %s -> %s", name, from, to)
	}
	return gobreaker.NewCircuitBreaker(st)
}

// WithBaseURL 指向其它REST地址（测试网或本地模拟）
func (d *KlineDownloader) WithBaseURL(url string) *KlineDownloader {
	d.client.BaseURL = url
	return d
}

// WithLimiter 替换请求节流器
func (d *KlineDownloader) WithLimiter(l *rate.Limiter) *KlineDownloader {
	d.limiter = l
	return d
}

// FileName 返回下载文件的默认路径，如 data/BTCUSDT-1m-2025-06-01-2025-06-15.csv
func FileName(dir, symbol, interval string, start, end time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s-%s-%s.csv", symbol, interval, start.Format("2006-01-02"), end.Format("2006-01-02")))
}

// DownloadKlines 下载指定交易对、周期和时间范围内的K线数据并保存到CSV文件。
// 如果文件已存在，则会跳过下载，直接使用缓存。
func (d *KlineDownloader) DownloadKlines(ctx context.Context, symbol, interval, filePath string, startTime, endTime time.Time) error {
	if _, err := os.Stat(filePath); err == nil {
		logger.S().Infof("从缓存加载数据: %s", filePath)
		return nil
	}

	logger.S().Infof("开始下载 %s %s 从 %s 到 %s 的K线数据...", symbol, interval, startTime.Format("2006-01-02"), endTime.Format("2006-01-02"))

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("无法创建目录 %s: %w", dir, err)
	}

	// 先写入临时文件，失败时不留下半截缓存
	tmpPath := filePath + ".part"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("无法创建文件 %s: %w", tmpPath, err)
	}
	defer os.Remove(tmpPath)

	rows, err := d.writeKlines(ctx, file, symbol, interval, startTime, endTime)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("保存文件 %s 失败: %w", filePath, err)
	}

	logger.S().Infof("成功下载 %d 条K线数据到 %s", rows, filePath)
	return nil
}

func (d *KlineDownloader) writeKlines(ctx context.Context, file *os.File, symbol, interval string, startTime, endTime time.Time) (int, error) {
	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(feed.Header); err != nil {
		return 0, fmt.Errorf("写入CSV表头失败: %w", err)
	}

	rows := 0
	for t := startTime; t.Before(endTime); {
		klines, err := d.fetch(ctx, symbol, interval, t, endTime)
		if err != nil {
			return rows, fmt.Errorf("下载K线数据失败: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			record := []string{
				fmt.Sprintf("%d", k.OpenTime),
				k.Open,
				k.High,
				k.Low,
				k.Close,
				k.Volume,
				fmt.Sprintf("%d", k.CloseTime),
				k.QuoteAssetVolume,
				fmt.Sprintf("%d", k.TradeNum),
				k.TakerBuyBaseAssetVolume,
				k.TakerBuyQuoteAssetVolume,
			}
			if err := writer.Write(record); err != nil {
				return rows, fmt.Errorf("写入CSV记录失败: %w", err)
			}
			rows++
		}

		// 更新下一次请求的开始时间
		t = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		logger.S().Debugf("已下载数据至 %s", t.UTC().Format("2006-01-02 15:04:05"))
		if len(klines) < batchLimit {
			break
		}
	}
	writer.Flush()
	return rows, writer.Error()
}

// fetch 请求一页K线，失败时重试，熔断打开后立即返回
func (d *KlineDownloader) fetch(ctx context.Context, symbol, interval string, from, to time.Time) ([]*binance.Kline, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		res, err := d.breaker.Execute(func() (interface{}, error) {
			return d.client.NewKlinesService().
				Symbol(symbol).
				Interval(interval).
				StartTime(from.UnixMilli()).
				EndTime(to.UnixMilli() - 1).
				Limit(batchLimit).
				Do(ctx)
		})
		if err == nil {
			return res.([]*binance.Kline), nil
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
			break
		}
		logger.S().Warnf("第 %d 次请求K线失败: %v", attempt, err)
	}
	return nil, lastErr
}
