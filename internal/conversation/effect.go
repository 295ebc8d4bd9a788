package conversation

// Effect is an instruction produced by Step.
type Effect interface{ effect() }

// Reply sends Text back to the user.
type Reply struct{ Text string }

// RequestCode asks the network to send a login code to Phone.
type RequestCode struct{ Phone string }

// DeliverCode hands a code to a login that is waiting for it.
type DeliverCode struct {
	Phone string
	Code  string
}

// CreateAccount persists a new account without a session token.
// Connect starts a background login with the given credentials.
type CreateAccount struct {
	Phone   string
	APIID   string
	APIHash string
	Connect bool
}

type CreateDestination struct{ Ident string }

type SaveMessage struct{ Body string }

// Audit appends an action log entry. When the same Step also yields a
// persisting effect, the entry is written in that transaction.
type Audit struct {
	Action  string
	Details string
}

func (Reply) effect()             {}
func (RequestCode) effect()       {}
func (DeliverCode) effect()       {}
func (CreateAccount) effect()     {}
func (CreateDestination) effect() {}
func (SaveMessage) effect()       {}
func (Audit) effect()             {}

// Persists reports whether e writes to the record store
// (Audit alone does not count).
func Persists(e Effect) bool {
	switch e.(type) {
	case CreateAccount, CreateDestination, SaveMessage:
		return true
	}
	return false
}
