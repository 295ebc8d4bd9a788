package conversation

import (
	"strconv"
	"strings"

	"postbot/internal/storage"
)

// Machine is the dialogue transition function.
type Machine struct {
	// LiveCodes makes the code step hand the code to a pending network
	// login instead of creating a token-less account.
	LiveCodes bool
}

// Entry points, triggered from menu buttons.

func (m Machine) BeginPhone() (State, []Effect) {
	return AwaitingPhone{}, []Effect{
		Audit{Action: storage.ActionRequestPhoneNumber},
		Reply{Text: TextAskPhone},
	}
}

func (m Machine) BeginAPITriple() (State, []Effect) {
	return AwaitingAPITriple{}, []Effect{
		Audit{Action: storage.ActionRequestAPIData},
		Reply{Text: TextAPIInstructions},
	}
}

func (m Machine) BeginDestination() (State, []Effect) {
	return AwaitingDestination{}, []Effect{
		Audit{Action: storage.ActionRequestGroupInfo},
		Reply{Text: TextAskDestination},
	}
}

// BeginMessageBody shows the current draft, if any, as a hint.
func (m Machine) BeginMessageBody(current string) (State, []Effect) {
	text := TextAskMessage
	if current != "" {
		text += "\n\nCurrent message:\n" + current
	}
	return AwaitingMessageBody{}, []Effect{
		Audit{Action: storage.ActionRequestMessageText},
		Reply{Text: text},
	}
}

// Step consumes one line of input in state s.
// Malformed input keeps s and yields only a Reply.
func (m Machine) Step(s State, input string) (State, []Effect) {
	switch st := s.(type) {
	case AwaitingPhone:
		return m.submitPhone(st, input)
	case AwaitingCode:
		return m.submitCode(st, input)
	case AwaitingAPITriple:
		return m.submitAPITriple(st, input)
	case AwaitingDestination:
		return m.submitDestination(st, input)
	case AwaitingMessageBody:
		return m.submitMessageBody(input)
	default:
		return Idle{}, []Effect{Reply{Text: TextIdleHint}}
	}
}

func (m Machine) submitPhone(st AwaitingPhone, input string) (State, []Effect) {
	phone, err := ParsePhone(input)
	if err != nil {
		return st, []Effect{Reply{Text: TextBadPhone}}
	}
	return AwaitingCode{Phone: phone, Live: m.LiveCodes}, []Effect{
		Audit{Action: storage.ActionPhoneNumberEntered, Details: phone},
		RequestCode{Phone: phone},
		Reply{Text: TextCodeSent},
	}
}

func (m Machine) submitCode(st AwaitingCode, input string) (State, []Effect) {
	code, err := ParseCode(input)
	if err != nil {
		return st, []Effect{Reply{Text: TextBadCode}}
	}
	audit := Audit{Action: storage.ActionCodeEntered, Details: "code_received"}
	if st.Live {
		return Idle{}, []Effect{
			audit,
			DeliverCode{Phone: st.Phone, Code: code},
			Reply{Text: TextCodeAccepted},
		}
	}
	return Idle{}, []Effect{
		CreateAccount{Phone: st.Phone},
		audit,
		Reply{Text: TextAccountAdded},
	}
}

func (m Machine) submitAPITriple(st AwaitingAPITriple, input string) (State, []Effect) {
	t, err := ParseAPITriple(input)
	if err != nil {
		return st, []Effect{Reply{Text: TextBadAPITriple}}
	}
	return Idle{}, []Effect{
		CreateAccount{Phone: t.Phone, APIID: t.APIID, APIHash: t.APIHash, Connect: true},
		Audit{Action: storage.ActionAPIDataEntered, Details: "api_id: " + t.APIID},
		Reply{Text: TextAPIAccepted},
	}
}

func (m Machine) submitDestination(st AwaitingDestination, input string) (State, []Effect) {
	if strings.TrimSpace(input) == "" {
		return st, []Effect{Reply{Text: TextBadDestination}}
	}
	return Idle{}, []Effect{
		CreateDestination{Ident: input},
		Audit{Action: storage.ActionGroupInfoEntered, Details: input},
		Reply{Text: TextDestinationAdded(input)},
	}
}

func (m Machine) submitMessageBody(input string) (State, []Effect) {
	return Idle{}, []Effect{
		SaveMessage{Body: input},
		Audit{Action: storage.ActionMessageTextEntered, Details: "length: " + strconv.Itoa(len([]rune(input)))},
		Reply{Text: TextMessageSaved},
	}
}
