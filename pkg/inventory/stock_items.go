package inventory

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateCatalogItem creates a catalog item
// 品目マスタを作成
func (m *Manager) CreateCatalogItem(ctx context.Context, item *CatalogItem) error {
	if err := ValidateCatalogItem(item); err != nil {
		return err
	}

	now := m.now()
	if item.ID == "" {
		item.ID = NewID()
	}
	item.CreatedAt = now
	item.UpdatedAt = now

	err := m.store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.GetItemByCode(ctx, item.Code); err == nil {
			return ErrDuplicateItem
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return tx.CreateItem(ctx, item)
	})
	if err != nil {
		m.logger.Error("品目作成に失敗しました", zap.String("code", item.Code), zap.Error(err))
		return err
	}

	m.logger.Info("品目作成完了",
		zap.String("item_id", item.ID),
		zap.String("code", item.Code),
		zap.String("name", item.Name),
	)
	return nil
}

// CreateStockItem creates a stock item for a catalog item at a location
// 品目と保管場所の在庫品目を作成
func (m *Manager) CreateStockItem(ctx context.Context, stockItem *StockItem) error {
	if stockItem == nil {
		return NewValidationError("stock_item", "在庫品目が指定されていません", "")
	}
	if strings.TrimSpace(stockItem.ItemID) == "" {
		return NewValidationError("item_id", "品目IDが指定されていません", stockItem.ItemID)
	}
	if err := ValidateThresholds(stockItem.MinQuantity, stockItem.MaxQuantity); err != nil {
		return err
	}
	if stockItem.CurrentQuantity.IsNegative() {
		return NewValidationError("current_quantity", "現在数量は0以上である必要があります", stockItem.CurrentQuantity.String())
	}
	if stockItem.Location == "" {
		stockItem.Location = m.config.DefaultLocation
	}

	err := m.store.WithinTx(ctx, func(tx Tx) error {
		return m.createStockItem(ctx, tx, stockItem)
	})
	if err != nil {
		m.logger.Error("在庫品目作成に失敗しました",
			zap.String("item_id", stockItem.ItemID),
			zap.String("location", stockItem.Location),
			zap.Error(err),
		)
		return err
	}

	m.logger.Info("在庫品目作成完了",
		zap.String("stock_item_id", stockItem.ID),
		zap.String("item_id", stockItem.ItemID),
		zap.String("location", stockItem.Location),
	)
	return nil
}

func (m *Manager) createStockItem(ctx context.Context, tx Tx, stockItem *StockItem) error {
	item, err := tx.GetItem(ctx, stockItem.ItemID)
	if err != nil {
		return err
	}
	if _, err := tx.GetStockItemByItem(ctx, stockItem.ItemID, stockItem.Location); err == nil {
		return ErrDuplicateStockItem
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	now := m.now()
	if stockItem.ID == "" {
		stockItem.ID = NewID()
	}
	stockItem.Item = item
	stockItem.IsActive = true
	stockItem.Version = 1
	stockItem.CreatedAt = now
	stockItem.UpdatedAt = now

	return tx.CreateStockItem(ctx, stockItem)
}

// GetOrCreateStockItem returns the stock item for (itemID, location), creating an empty one if missing
// 在庫品目を取得（存在しない場合は数量0で作成）
func (m *Manager) GetOrCreateStockItem(ctx context.Context, itemID, location string) (*StockItem, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, NewValidationError("item_id", "品目IDが指定されていません", itemID)
	}
	if location == "" {
		location = m.config.DefaultLocation
	}

	var result *StockItem
	created := false
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		existing, err := tx.GetStockItemByItem(ctx, itemID, location)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		stockItem := &StockItem{
			ItemID:          itemID,
			Location:        location,
			CurrentQuantity: decimal.Zero,
		}
		if err := m.createStockItem(ctx, tx, stockItem); err != nil {
			return err
		}
		result = stockItem
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		m.logger.Info("在庫品目を自動作成しました",
			zap.String("stock_item_id", result.ID),
			zap.String("item_id", itemID),
			zap.String("location", location),
		)
	}
	return result, nil
}

// GetStockItem gets a stock item
// 在庫品目を取得
func (m *Manager) GetStockItem(ctx context.Context, stockItemID string) (*StockItem, error) {
	var stockItem *StockItem
	err := m.store.WithinReadTx(ctx, func(tx Tx) error {
		var err error
		stockItem, err = tx.GetStockItem(ctx, stockItemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stockItem, nil
}

// ListStockItems lists stock items
// 在庫品目一覧を取得
func (m *Manager) ListStockItems(ctx context.Context, filter StockItemFilter) ([]StockItem, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100 // デフォルト値
	}

	var stockItems []StockItem
	err := m.store.WithinReadTx(ctx, func(tx Tx) error {
		var err error
		stockItems, err = tx.ListStockItems(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stockItems, nil
}

// UpdateStockItemThresholds sets the minimum and maximum quantities; nil clears a threshold
// 最小・最大在庫数を更新（nilは未設定に戻す）
func (m *Manager) UpdateStockItemThresholds(ctx context.Context, stockItemID string, minQuantity, maxQuantity *decimal.Decimal) (*StockItem, error) {
	if err := ValidateThresholds(minQuantity, maxQuantity); err != nil {
		return nil, err
	}

	var updated *StockItem
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		stockItem, err := tx.LockStockItem(ctx, stockItemID)
		if err != nil {
			return err
		}
		stockItem.MinQuantity = minQuantity
		stockItem.MaxQuantity = maxQuantity
		stockItem.UpdatedAt = m.now()
		if err := tx.UpdateStockItem(ctx, stockItem); err != nil {
			return err
		}
		updated = stockItem
		return nil
	})
	if err != nil {
		m.logger.Error("在庫閾値更新に失敗しました", zap.String("stock_item_id", stockItemID), zap.Error(err))
		return nil, err
	}

	m.logger.Info("在庫閾値更新完了", zap.String("stock_item_id", stockItemID))
	return updated, nil
}

// DeactivateStockItem soft-deletes a stock item; its history is kept
// 在庫品目を無効化（履歴は保持）
func (m *Manager) DeactivateStockItem(ctx context.Context, stockItemID string) error {
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		stockItem, err := tx.LockStockItem(ctx, stockItemID)
		if err != nil {
			return err
		}
		if !stockItem.IsActive {
			return nil
		}
		stockItem.IsActive = false
		stockItem.UpdatedAt = m.now()
		return tx.UpdateStockItem(ctx, stockItem)
	})
	if err != nil {
		m.logger.Error("在庫品目無効化に失敗しました", zap.String("stock_item_id", stockItemID), zap.Error(err))
		return err
	}

	m.logger.Info("在庫品目無効化完了", zap.String("stock_item_id", stockItemID))
	return nil
}
