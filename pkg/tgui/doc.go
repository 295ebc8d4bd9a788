// Package tgui holds small Telegram UI helpers: inline keyboards, callback
// data in the "prefix:action:payload" form, and an HTML-safe message
// builder.
package tgui
