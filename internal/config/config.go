package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hybrid-grid-bot-go/internal/indicators"
	"hybrid-grid-bot-go/internal/models"

	"gopkg.in/yaml.v3"
)

// DefaultConfig 返回带默认值的配置，文件中缺省的字段保持这些值
func DefaultConfig() *models.Config {
	return &models.Config{
		Symbol:           "BTCUSDT",
		Interval:         "1m",
		Strategy:         "grid_pro",
		InitialEquity:    10000,
		Leverage:         1,
		HistoryWindow:    600,
		WSBaseURL:        "wss://stream.binance.com:9443/ws",
		Grid:             models.DefaultStrategyConfig(),
		TakerFeeRate:     0.001,
		SlippageRate:     0.0005,
		MinNotionalValue: 5,
		LogConfig: models.LogConfig{
			Level:      "info",
			Output:     "console",
			File:       "logs/bot.log",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// LoadConfig 从指定路径加载配置文件并解析到Config结构体中
// .yaml / .yml 按YAML解析，其余按JSON解析；策略参数会被截断到允许范围
func LoadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	if err := Validate(config); err != nil {
		return nil, err
	}
	config.Grid = config.Grid.Clamp()
	// 窗口必须能容纳预热所需的K线
	if need := indicators.RequiredBars(indicators.ParamsFromConfig(config.Grid)); config.HistoryWindow < need {
		config.HistoryWindow = need
	}
	return config, nil
}

// Validate 检查无法被截断修正的配置错误
func Validate(c *models.Config) error {
	if c.Symbol == "" {
		return fmt.Errorf("配置缺少 symbol")
	}
	if c.InitialEquity <= 0 {
		return fmt.Errorf("initial_equity 必须为正数，当前为 %v", c.InitialEquity)
	}
	if c.Leverage <= 0 {
		return fmt.Errorf("leverage 必须为正数，当前为 %v", c.Leverage)
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("history_window 必须为正数，当前为 %d", c.HistoryWindow)
	}
	return nil
}
