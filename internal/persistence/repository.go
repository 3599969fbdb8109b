package persistence

import "hybrid-grid-bot-go/internal/models"

// StateRepository 抽象了引擎快照的存储方式
type StateRepository interface {
	// SaveState 原子地保存一个交易对的完整快照
	SaveState(state *models.BotState) error

	// LoadState 读取交易对的快照，不存在时返回 (nil, nil)
	LoadState(symbol string) (*models.BotState, error)

	// DeleteState 删除交易对的快照
	DeleteState(symbol string) error

	Close() error
}
