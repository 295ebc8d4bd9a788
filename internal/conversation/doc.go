// Package conversation holds the per-user dialogue state machine.
//
// Step is pure: it reads the current State and one line of user input and
// returns the next State plus a list of Effects. Applying effects (store
// writes, replies, network logins) is the caller's job.
package conversation
