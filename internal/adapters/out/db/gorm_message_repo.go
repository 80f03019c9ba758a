package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/aurora-im/eventfabric/internal/domain/entity"
	"github.com/aurora-im/eventfabric/internal/ports/out"
)

// MessageModel GORM模型
type MessageModel struct {
	ID         string    `gorm:"column:id;type:char(36);primaryKey"`
	SenderID   string    `gorm:"column:sender_id;type:char(36);not null;index"`
	ReceiverID string    `gorm:"column:receiver_id;type:char(36);not null;index"`
	Content    string    `gorm:"column:content;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (MessageModel) TableName() string {
	return "messages"
}

func messageModelFromEvent(e *entity.Event) *MessageModel {
	return &MessageModel{
		ID:         e.EventID,
		SenderID:   e.SenderID,
		ReceiverID: e.ReceiverID,
		Content:    e.Text,
	}
}

// MessageRepositoryMySQL MySQL消息仓储实现
type MessageRepositoryMySQL struct {
	db *gorm.DB
}

func NewMessageRepositoryMySQL(db *gorm.DB) out.MessageRepository {
	return &MessageRepositoryMySQL{db: db}
}

// SaveMessages 单事务批量写入，任何一条失败整体回滚
func (r *MessageRepositoryMySQL) SaveMessages(ctx context.Context, events []*entity.Event) error {
	if len(events) == 0 {
		return nil
	}
	models := make([]*MessageModel, len(events))
	for i, e := range events {
		models[i] = messageModelFromEvent(e)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&models).Error
	})
}
