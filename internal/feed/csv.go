// Package feed supplies closed bars from historical CSV files or the live
// kline websocket.
package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"hybrid-grid-bot-go/internal/logger"
	"hybrid-grid-bot-go/internal/models"
)

var ErrNoBars = errors.New("data file has no bars")

// Header 是下载器写出的CSV表头，前六列为 open_time,open,high,low,close,volume
var Header = []string{"open_time", "open", "high", "low", "close", "volume", "close_time", "quote_asset_volume", "number_of_trades", "taker_buy_base_asset_volume", "taker_buy_quote_asset_volume"}

// ReadCSV 读取整份K线文件。无法解析的行会被跳过并记录警告，
// 时间倒退的行同样被跳过。
func ReadCSV(path string) ([]models.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开历史数据文件: %w", err)
	}
	defer file.Close()
	return ParseCSV(file)
}

// ParseCSV 解析带表头的K线CSV
func ParseCSV(r io.Reader) ([]models.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("无法读取CSV记录: %w", err)
	}
	if len(records) <= 1 {
		return nil, ErrNoBars
	}

	bars := make([]models.Bar, 0, len(records)-1)
	for _, record := range records[1:] {
		bar, err := ParseRecord(record)
		if err != nil {
			logger.S().Warnf("无法解析K线数据，跳过此条记录 %v: %v", record, err)
			continue
		}
		if n := len(bars); n > 0 && !bar.Timestamp.After(bars[n-1].Timestamp) {
			logger.S().Warnf("K线时间 %s 未递增，跳过", bar.Timestamp.Format(time.RFC3339))
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	return bars, nil
}

// ParseRecord 将一行CSV转换为Bar，时间戳为毫秒
func ParseRecord(record []string) (models.Bar, error) {
	if len(record) < 6 {
		return models.Bar{}, fmt.Errorf("需要至少6列，实际 %d 列", len(record))
	}
	ts, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return models.Bar{}, fmt.Errorf("open_time: %w", err)
	}
	var vals [5]float64
	for i := range vals {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return models.Bar{}, fmt.Errorf("%s: %w", Header[i+1], err)
		}
		vals[i] = v
	}
	return models.Bar{
		Timestamp: time.UnixMilli(ts).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}
