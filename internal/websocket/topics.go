package websocket

// Topics used by the WebSocket bridge to route frames over the pub/sub bus.
const (
	// TopicEventInbound carries frames read from clients. Metadata:
	// connection_id of the originating connection.
	TopicEventInbound = "ws.event.inbound"

	// TopicEventDirect carries an outbound frame for a single connection.
	// Metadata: recipient_id, the target connection id.
	TopicEventDirect = "ws.event.direct"

	// TopicEventBroadcast carries an outbound frame for every connection.
	// This is the "presence" delivery group: status changes go to everyone,
	// not to a single user's group.
	TopicEventBroadcast = "ws.event.broadcast"

	// TopicClientDisconnected is published when a connection closes for any
	// reason. Metadata: connection_id.
	TopicClientDisconnected = "ws.client.disconnected"
)

// Metadata keys on bridge messages.
const (
	MetaConnectionID = "connection_id"
	MetaRecipientID  = "recipient_id"
)
