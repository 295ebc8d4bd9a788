package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("record not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): Path is the database file
//   - "postgres": DSN is a lib/pq connection string
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Action tags written to the log table.
const (
	ActionStartCommand        = "start_command"
	ActionConnectAccountMenu  = "connect_account_menu"
	ActionAddAccountMenu      = "add_account_menu"
	ActionRequestPhoneNumber  = "request_phone_number"
	ActionPhoneNumberEntered  = "phone_number_entered"
	ActionCodeEntered         = "code_entered"
	ActionRequestAPIData      = "request_api_data"
	ActionAPIDataEntered      = "api_data_entered"
	ActionAccountConnected    = "account_connected"
	ActionAccountError        = "account_error"
	ActionAccountRemoved      = "account_removed"
	ActionConfigureBotMenu    = "configure_bot_menu"
	ActionGroupMessagingMenu  = "group_messaging_menu"
	ActionRequestGroupInfo    = "request_group_info"
	ActionGroupInfoEntered    = "group_info_entered"
	ActionGroupRemoved        = "group_removed"
	ActionRequestMessageText  = "request_message_text"
	ActionMessageTextEntered  = "message_text_entered"
	ActionStartMailingAttempt = "start_mailing_attempt"
	ActionMailingStarted      = "mailing_started"
	ActionMailingFinished     = "mailing_finished"
	ActionMailingCancelled    = "mailing_cancelled"
	ActionMessageSent         = "message_sent"
	ActionSendError           = "send_error"
	ActionMailingError        = "mailing_error"
	ActionViewStats           = "view_stats"
	ActionError               = "error"
)

// Account is an attached user account of the messaging network.
// APIID/APIHash are empty when the account relies on the default pair.
type Account struct {
	ID           int64
	UserID       int64
	Phone        string
	APIID        string
	APIHash      string
	SessionToken string
	Active       bool
	CreatedAt    time.Time
}

func (a Account) HasToken() bool { return a.SessionToken != "" }

type NewAccount struct {
	UserID  int64
	Phone   string
	APIID   string
	APIHash string
	// SessionToken is set when the account is created after a live login.
	SessionToken string
}

// Destination is a send target. Ident is kept verbatim as the user typed it.
type Destination struct {
	ID        int64
	UserID    int64
	Ident     string
	Title     string
	Active    bool
	CreatedAt time.Time
}

type MessageDraft struct {
	ID        int64
	UserID    int64
	Body      string
	Active    bool
	CreatedAt time.Time
}

// LogEntry is one row of the append-only action log.
type LogEntry struct {
	ID        int64
	UserID    int64
	Action    string
	Details   string
	CreatedAt time.Time
}

// Note is an audit entry written in the same transaction as a change.
type Note struct {
	Action  string
	Details string
}

// LogFilter narrows ListLogs. Zero fields match everything.
type LogFilter struct {
	UserID int64
	Action string
	Limit  int
}

// Stats backs the /stats command.
type Stats struct {
	Users              int64
	UsersWithDraft     int64
	ActiveAccounts     int64
	ActiveDestinations int64
}
