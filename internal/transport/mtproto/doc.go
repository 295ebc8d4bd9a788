// Package mtproto implements accounts.Dialer on the gotd MTProto client.
//
// A session token is the base64 (std) encoding of gotd's session blob, so
// a stored account can reconnect without a new login.
package mtproto
