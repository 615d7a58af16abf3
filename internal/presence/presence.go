// Package presence publishes ephemeral online and typing markers to a
// key-value store with per-key expiry.
package presence

// OnlineKey is the marker set while identity has a live session.
func OnlineKey(identity string) string {
	return "online:" + identity
}

// TypingKey is the marker set while from is typing to to.
func TypingKey(from, to string) string {
	return "typing:" + from + ":" + to
}
