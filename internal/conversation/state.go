package conversation

// State is one of the sealed dialogue states below.
type State interface {
	Name() string
	sealed()
}

type Idle struct{}

type AwaitingPhone struct{}

// AwaitingCode waits for the 5-digit verification code for Phone.
// Live is set when a real login is blocked on the code.
type AwaitingCode struct {
	Phone string
	Live  bool
}

type AwaitingAPITriple struct{}

type AwaitingDestination struct{}

type AwaitingMessageBody struct{}

func (Idle) Name() string                { return "idle" }
func (AwaitingPhone) Name() string       { return "awaiting_phone" }
func (AwaitingCode) Name() string        { return "awaiting_code" }
func (AwaitingAPITriple) Name() string   { return "awaiting_api_triple" }
func (AwaitingDestination) Name() string { return "awaiting_destination" }
func (AwaitingMessageBody) Name() string { return "awaiting_message_body" }

func (Idle) sealed()                {}
func (AwaitingPhone) sealed()       {}
func (AwaitingCode) sealed()        {}
func (AwaitingAPITriple) sealed()   {}
func (AwaitingDestination) sealed() {}
func (AwaitingMessageBody) sealed() {}

// IsIdle reports whether s is nil or Idle.
func IsIdle(s State) bool {
	if s == nil {
		return true
	}
	_, ok := s.(Idle)
	return ok
}
