package signing

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"net/mail"
	"strings"
)

const tokenBytes = 32

// generateToken returns an unguessable recipient access token.
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%q is not a valid email address", email)
	}
	return strings.ToLower(email), nil
}

func signingOrderOf(r Recipient) int64 {
	if r.SigningOrder == nil {
		return math.MaxInt64
	}
	return int64(*r.SigningOrder)
}

// isRecipientsTurn reports whether r may sign now. In sequential envelopes an actionable recipient
// must wait until every actionable recipient with a lower signing order has signed.
func isRecipientsTurn(env Envelope, r Recipient, all []Recipient) bool {
	if env.SigningOrder != SigningOrderSequential || !r.Role.Actionable() {
		return true
	}
	mine := signingOrderOf(r)
	for _, other := range all {
		if other.ID == r.ID || !other.Role.Actionable() {
			continue
		}
		if signingOrderOf(other) < mine && !other.Signed() {
			return false
		}
	}
	return true
}

// pendingInvites returns the recipients that should be sent the envelope now: viewers, and the
// actionable recipients whose turn it is, skipping anyone already sent to. CC recipients are only
// mailed on completion.
func pendingInvites(env Envelope, all []Recipient) []Recipient {
	var out []Recipient
	for _, r := range all {
		if r.SendStatus == SendStatusSent || r.Signed() {
			continue
		}
		switch {
		case r.Role == RoleViewer:
			out = append(out, r)
		case r.Role.Actionable() && isRecipientsTurn(env, r, all):
			out = append(out, r)
		}
	}
	return out
}
