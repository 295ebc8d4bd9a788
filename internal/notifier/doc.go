// Package notifier is the bot's outbound message queue.
//
// Messages are sharded by chat so one chat always sees them in order,
// paced by a shared token bucket to stay under Bot API flood limits, and
// optionally de-duplicated within a short window.
package notifier
