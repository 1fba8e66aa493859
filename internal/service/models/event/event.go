package event

// Address identifies a single recipient of an event.
type Address string

// Payload is the opaque message body delivered to every recipient.
type Payload []byte

// Event represents a unit of work read from the upstream source.
type Event struct {
	ID         string
	Payload    Payload
	Recipients []Address
}

// DeliveryResult is the outcome of one send attempt to one recipient.
type DeliveryResult int

const (
	// Accepted means the recipient took the payload.
	Accepted DeliveryResult = iota
	// Rejected means the send has to be retried later.
	Rejected
)

func (r DeliveryResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}
