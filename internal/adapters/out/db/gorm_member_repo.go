package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/aurora-im/eventfabric/internal/ports/out"
)

// ChannelMemberModel GORM模型
type ChannelMemberModel struct {
	ChannelID string    `gorm:"column:channel_id;type:char(36);primaryKey"`
	UserID    string    `gorm:"column:user_id;type:char(36);primaryKey;index"`
	JoinedAt  time.Time `gorm:"column:joined_at;autoCreateTime"`
}

func (ChannelMemberModel) TableName() string {
	return "channel_members"
}

// MemberRepositoryMySQL MySQL频道成员仓储实现
// 只做在线缓存未命中时的回源查询
type MemberRepositoryMySQL struct {
	db *gorm.DB
}

func NewMemberRepositoryMySQL(db *gorm.DB) out.MemberRepository {
	return &MemberRepositoryMySQL{db: db}
}

// ListUserChannels 查询用户所属的全部频道
func (r *MemberRepositoryMySQL) ListUserChannels(ctx context.Context, userID string) ([]string, error) {
	var channelIDs []string
	err := r.db.WithContext(ctx).
		Model(&ChannelMemberModel{}).
		Where("user_id = ?", userID).
		Pluck("channel_id", &channelIDs).Error
	if err != nil {
		return nil, err
	}
	return channelIDs, nil
}
