package realtime

// Topics carried by the realtime channel. Clients receive every event and
// filter by journey id on their side.
const (
	TopicJourneyCreated  = "journey:created"
	TopicJourneyUpdated  = "journey:updated"
	TopicJourneyDeleted  = "journey:deleted"
	TopicFollowerAdded   = "journey:follower:added"
	TopicFollowerRemoved = "journey:follower:removed"
)

// Message is a single event on the channel.
type Message struct {
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
}

// Bus is the publish/subscribe abstraction the lifecycle and invitation
// services publish into. The in-process Hub is the only implementation
// today; a broker-backed one can replace it for multi-instance deployments.
type Bus interface {
	// Publish delivers the payload to every connected client, best-effort.
	Publish(topic string, payload interface{})

	// Subscribe registers an in-process consumer for all topics and returns
	// its receive channel plus an unsubscribe func.
	Subscribe() (<-chan Message, func())
}
