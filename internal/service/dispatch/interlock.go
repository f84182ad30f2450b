package dispatch

import "github.com/proshano/kcru-mailer/internal/domain"

// AssertBroadcastAllowed is the hard interlock for broadcast-style sends.
// Broadcast audiences come from operator-authored filters, so a filter bug
// could otherwise reach the entire list; requiring an enabled, non-empty
// allowlist makes an accidental full-list send structurally impossible.
func AssertBroadcastAllowed(test *domain.TestModeConfig) error {
	if test == nil || !test.Enabled || len(test.Recipients) == 0 {
		return ErrSendingDisabled
	}
	return nil
}

// ApplyAllowlist intersects a candidate audience with the test-mode
// allowlist. For the fixed recurring campaigns the interlock never blocks
// a run, but while test mode is on it silently shrinks every audience to
// the allowlist before content selection, composition, or sending.
func ApplyAllowlist(subs []domain.Subscriber, test *domain.TestModeConfig) []domain.Subscriber {
	if test == nil || !test.Enabled {
		return subs
	}
	var out []domain.Subscriber
	for _, s := range subs {
		if test.Allows(s.Email) {
			out = append(out, s)
		}
	}
	return out
}
