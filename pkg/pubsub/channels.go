package pubsub

import "strings"

// ChannelChat is the single shared channel every chat node publishes to
// and subscribes to.
const ChannelChat = "chat"

// TopicForChannel maps a Redis-style channel name to a Kafka topic name.
//
//	"chat"          -> "chat"
//	"chat:room:abc" -> "chat-room-abc"
func TopicForChannel(channel string) string {
	return sanitizeName(strings.ReplaceAll(channel, ":", "-"))
}
