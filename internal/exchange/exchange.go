package exchange

import (
	"errors"

	"hybrid-grid-bot-go/internal/models"
)

var (
	ErrMinNotional        = errors.New("order notional below exchange minimum")
	ErrInsufficientMargin = errors.New("insufficient margin for order")
	ErrLiquidated         = errors.New("account liquidated")
	ErrSymbolMismatch     = errors.New("intent symbol does not match exchange")
)

// Exchange 是引擎意图的执行方。
// 引擎只产生意图，由实现决定如何成交并回报账户状态。
type Exchange interface {
	// SetPrice 用最新收盘的K线更新标记价格
	SetPrice(bar models.Bar)
	// PlaceOpen 执行开仓意图，失败时引擎应调用 Reject
	PlaceOpen(intent models.OpenIntent) error
	// CloseAll 执行平仓意图并返回产生的已平仓交易
	CloseAll(intent models.CloseAllIntent) ([]models.TradeRecord, error)
	// AccountSnapshot 返回当前权益与持仓
	AccountSnapshot() models.AccountSnapshot
}
