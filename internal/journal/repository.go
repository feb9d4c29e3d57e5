package journal

import (
	"context"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"autotrader/internal/model"
)

// Repository persists orders and trades.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&OrderModel{}, &TradeModel{}); err != nil {
		return errors.Wrap(err, "migrate journal")
	}
	return nil
}

// UpsertOrder stores the latest status of an order keyed by its id.
func (r *Repository) UpsertOrder(ctx context.Context, d model.OrderDetail) error {
	m := toOrderModel(d)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"broker_order_id", "status", "quantity", "price", "filled_quantity",
			"filled_price", "commission", "error_message", "fill_time", "updated_at",
		}),
	}).Create(&m).Error
}

func (r *Repository) InsertTrade(ctx context.Context, t model.TradeRecord) error {
	m := toTradeModel(t)
	return r.db.WithContext(ctx).Create(&m).Error
}

// TradesBetween returns trades with from <= timestamp < to in time order.
func (r *Repository) TradesBetween(ctx context.Context, from, to int64) ([]model.TradeRecord, error) {
	var rows []TradeModel
	err := r.db.WithContext(ctx).
		Where("traded_at >= ? AND traded_at < ?", from, to).
		Order("traded_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.TradeRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.record())
	}
	return out, nil
}

// Orders returns the most recently submitted orders first. limit <= 0 means
// no limit.
func (r *Repository) Orders(ctx context.Context, limit int) ([]model.OrderDetail, error) {
	var rows []OrderModel
	q := r.db.WithContext(ctx).Order("submit_time DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.OrderDetail, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.detail())
	}
	return out, nil
}
