package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"hybrid-grid-bot-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

const stateKeyPrefix = "bot_state:"

type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository 打开BadgerDB；dbPath 为空时使用纯内存模式
func NewBadgerRepository(dbPath string) (StateRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	if dbPath == "" {
		opts = opts.WithInMemory(true)
	}
	// 关闭Badger自身日志，错误仍会通过返回值传递
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开状态数据库失败: %w", err)
	}
	return &badgerRepository{db: db}, nil
}

func stateKey(symbol string) []byte {
	return []byte(stateKeyPrefix + symbol)
}

// SaveState 将快照序列化为JSON后写入交易对对应的键
func (r *badgerRepository) SaveState(state *models.BotState) error {
	if state == nil || state.Symbol == "" {
		return errors.New("快照缺少交易对")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(state.Symbol), data)
	})
}

func (r *badgerRepository) LoadState(symbol string) (*models.BotState, error) {
	var state models.BotState
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(symbol))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("数据库中的快照为空")
			}
			return json.Unmarshal(val, &state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *badgerRepository) DeleteState(symbol string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(stateKey(symbol))
	})
}

func (r *badgerRepository) Close() error {
	return r.db.Close()
}
