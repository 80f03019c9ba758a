package redis

import "fmt"

// 存储键命名空间
// 所有进程共享同一套键名约定
const (
	consumersKey = "event_consumers"
	leasesKey    = "leases"
)

// StreamName 分片对应的流名
func StreamName(shard int) string {
	return fmt.Sprintf("stream_shard:%d", shard)
}

func userEndpointKey(userID string) string {
	return "user:" + userID + ":grpc_endpoint"
}

func userChannelsKey(userID string) string {
	return "user:" + userID + ":channels"
}

func channelEndpointsKey(channelID string) string {
	return "channel:" + channelID + ":grpc_endpoints"
}

func heartbeatKey(consumerID string) string {
	return "heartbeat:" + consumerID
}
