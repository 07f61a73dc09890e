package types

// PushMessage is the gateway-agnostic description of one outbound push.
// The dispatch layer fills in the title and action derived from the
// notification type; the gateway client turns it into the wire format.
type PushMessage struct {
	NotificationID string
	Type           NotificationType
	Title          string
	Body           string
	Action         string
	JobID          string
	ActionData     JSONMap
	Priority       Priority
}

// GatewayResult is the classified outcome of sending one message to one
// device token. Raw carries the decoded upstream response (or a synthesized
// record for transport failures) and is persisted verbatim in the ledger.
type GatewayResult struct {
	Success   bool
	MessageID string
	Error     string
	Raw       JSONMap
}
