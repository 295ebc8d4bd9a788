package tgui

import (
	"errors"
	"strconv"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats inline callback data as "prefix:action[:payload]".
// The payload is kept as-is.
func Data(prefix, action, payload string) string {
	prefix = strings.TrimSpace(prefix)
	action = strings.TrimSpace(action)
	if payload == "" {
		return prefix + ":" + action
	}
	return prefix + ":" + action + ":" + payload
}

// DataChecked is Data with the platform length limit enforced.
func DataChecked(prefix, action, payload string) (string, error) {
	d := Data(prefix, action, payload)
	if len(d) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return d, nil
}

// DataID carries a numeric id as payload.
func DataID(prefix, action string, id int64) string {
	return Data(prefix, action, strconv.FormatInt(id, 10))
}

// PayloadID parses a payload produced by DataID.
func PayloadID(payload string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	return id, err == nil
}
