package ws

import "sync"

// UserChannelIndex user↔channel 双向多重映射
// 客户端连接时从存储重建，断开时拆除，仅用于本地扇出路由
type UserChannelIndex struct {
	mu           sync.RWMutex
	userChannels map[string]map[string]struct{}
	channelUsers map[string]map[string]struct{}
}

func NewUserChannelIndex() *UserChannelIndex {
	return &UserChannelIndex{
		userChannels: make(map[string]map[string]struct{}),
		channelUsers: make(map[string]map[string]struct{}),
	}
}

// Add 建立用户与频道的双向映射
func (m *UserChannelIndex) Add(userID, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userChannels[userID] == nil {
		m.userChannels[userID] = make(map[string]struct{})
	}
	m.userChannels[userID][channelID] = struct{}{}

	if m.channelUsers[channelID] == nil {
		m.channelUsers[channelID] = make(map[string]struct{})
	}
	m.channelUsers[channelID][userID] = struct{}{}
}

// UserChannels 用户所在的频道
func (m *UserChannelIndex) UserChannels(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	channels := make([]string, 0, len(m.userChannels[userID]))
	for c := range m.userChannels[userID] {
		channels = append(channels, c)
	}
	return channels
}

// ChannelUsers 频道在本实例的在线用户
func (m *UserChannelIndex) ChannelUsers(channelID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]string, 0, len(m.channelUsers[channelID]))
	for u := range m.channelUsers[channelID] {
		users = append(users, u)
	}
	return users
}

// RemoveUser 把用户从全部频道移除，返回因此变空的频道
func (m *UserChannelIndex) RemoveUser(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var emptied []string
	for channelID := range m.userChannels[userID] {
		delete(m.channelUsers[channelID], userID)
		if len(m.channelUsers[channelID]) == 0 {
			delete(m.channelUsers, channelID)
			emptied = append(emptied, channelID)
		}
	}
	delete(m.userChannels, userID)
	return emptied
}
