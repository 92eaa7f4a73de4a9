package auth

import "time"

// SettleDelay is the pause inserted between starting the authenticator
// and starting the data-plane proxies, long enough for the
// authenticator's own listener to be accepting connections before
// anything else binds.
const SettleDelay = 50 * time.Millisecond

// StartSequence runs startAuthenticator, sleeps SettleDelay, then runs
// startDataPlane, so every data-plane proxy comes up only after the
// authenticator is already listening. If startAuthenticator fails,
// startDataPlane is never called.
func StartSequence(startAuthenticator func() error, startDataPlane func() error) error {
	if err := startAuthenticator(); err != nil {
		return err
	}
	time.Sleep(SettleDelay)
	return startDataPlane()
}
