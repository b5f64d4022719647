// Package store is the persistence collaborator: plain CRUD over board
// items and connections, postgres-backed. The sync engine only sees the
// sync.Persistence interface this satisfies.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pinwall/boardsync/internal/board"
	"github.com/pinwall/boardsync/internal/sync"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateConnection = errors.New("connection already exists")
	ErrSelfConnection      = errors.New("connection endpoints are the same item")
)

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to postgres and migrates the schema.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&ItemRow{}, &ConnectionRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func newID() string { return ulid.Make().String() }

func (s *Store) CreateItem(ctx context.Context, item board.Item) (board.Item, error) {
	row := rowFromItem(item)
	row.ID = newID()
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return board.Item{}, fmt.Errorf("create item: %w", err)
	}
	return itemFromRow(row), nil
}

func (s *Store) PatchItem(ctx context.Context, variant board.Variant, id string, patch sync.ItemPatch) error {
	updates := map[string]any{}
	if patch.X != nil {
		updates["x"] = *patch.X
	}
	if patch.Y != nil {
		updates["y"] = *patch.Y
	}
	if patch.Width != nil {
		updates["width"] = *patch.Width
	}
	if patch.Height != nil {
		updates["height"] = *patch.Height
	}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Content != nil {
		updates["content"] = *patch.Content
	}
	if patch.Color != nil {
		updates["color"] = *patch.Color
	}
	if patch.Rotation != nil {
		updates["rotation"] = *patch.Rotation
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&ItemRow{}).
		Where("id = ? AND variant = ?", id, string(variant)).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("patch item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteItem removes the item and, in the same transaction, every
// connection referencing it.
func (s *Store) DeleteItem(ctx context.Context, variant board.Variant, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("from_item_id = ? OR to_item_id = ?", id, id).
			Delete(&ConnectionRow{}).Error; err != nil {
			return fmt.Errorf("delete item connections: %w", err)
		}
		res := tx.Where("id = ? AND variant = ?", id, string(variant)).Delete(&ItemRow{})
		if res.Error != nil {
			return fmt.Errorf("delete item: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) FetchBoardSnapshot(ctx context.Context, boardID string) (sync.BoardSnapshot, error) {
	var rows []ItemRow
	if err := s.db.WithContext(ctx).Where("board_id = ?", boardID).Find(&rows).Error; err != nil {
		return sync.BoardSnapshot{}, fmt.Errorf("fetch items: %w", err)
	}
	var connRows []ConnectionRow
	if err := s.db.WithContext(ctx).Where("board_id = ?", boardID).Find(&connRows).Error; err != nil {
		return sync.BoardSnapshot{}, fmt.Errorf("fetch connections: %w", err)
	}
	snap := sync.BoardSnapshot{
		Items:       make([]board.Item, 0, len(rows)),
		Connections: make([]board.Connection, 0, len(connRows)),
	}
	for _, row := range rows {
		snap.Items = append(snap.Items, itemFromRow(row))
	}
	for _, row := range connRows {
		snap.Connections = append(snap.Connections, connFromRow(row))
	}
	return snap, nil
}

func (s *Store) CreateConnection(ctx context.Context, boardID, fromID, toID string) (board.Connection, error) {
	if fromID == toID {
		return board.Connection{}, ErrSelfConnection
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&ConnectionRow{}).
		Where("board_id = ? AND ((from_item_id = ? AND to_item_id = ?) OR (from_item_id = ? AND to_item_id = ?))",
			boardID, fromID, toID, toID, fromID).
		Count(&count).Error
	if err != nil {
		return board.Connection{}, fmt.Errorf("check duplicate connection: %w", err)
	}
	if count > 0 {
		return board.Connection{}, ErrDuplicateConnection
	}
	row := ConnectionRow{ID: newID(), BoardID: boardID, FromItemID: fromID, ToItemID: toID}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return board.Connection{}, fmt.Errorf("create connection: %w", err)
	}
	return connFromRow(row), nil
}

func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&ConnectionRow{})
	if res.Error != nil {
		return fmt.Errorf("delete connection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func rowFromItem(item board.Item) ItemRow {
	return ItemRow{
		ID:       item.ID,
		Variant:  string(item.Variant),
		BoardID:  item.BoardID,
		X:        item.X,
		Y:        item.Y,
		Width:    item.Width,
		Height:   item.Height,
		Title:    item.Title,
		Content:  item.Content,
		Color:    item.Color,
		Rotation: item.Rotation,
		ImageURL: item.ImageURL,
	}
}

func itemFromRow(row ItemRow) board.Item {
	return board.Item{
		ID:       row.ID,
		Variant:  board.Variant(row.Variant),
		BoardID:  row.BoardID,
		X:        row.X,
		Y:        row.Y,
		Width:    row.Width,
		Height:   row.Height,
		Title:    row.Title,
		Content:  row.Content,
		Color:    row.Color,
		Rotation: row.Rotation,
		ImageURL: row.ImageURL,
	}
}

func connFromRow(row ConnectionRow) board.Connection {
	return board.Connection{
		ID:         row.ID,
		BoardID:    row.BoardID,
		FromItemID: row.FromItemID,
		ToItemID:   row.ToItemID,
	}
}
