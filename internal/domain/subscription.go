package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is a persisted (user, book) pair with a batching
// threshold and a delivery watermark. Composite primary key
// (user_id, book_id).
type Subscription struct {
	BookID           uuid.UUID
	UserID           string
	GroupingQuantity int64      // batching threshold N, >= 1
	LastChapterID    *uuid.UUID // watermark; nil means "never delivered"
	CreatedAt        time.Time
}

// DeliveryMethod holds a user's configured notification channels.
// A channel is deliverable iff verified, enabled, and its destination
// value is set.
type DeliveryMethod struct {
	UserID string

	KindleEmail                     *string
	KindleEmailVerified             bool
	KindleEmailEnabled              bool
	KindleEmailVerificationCodeTime *time.Time
	KindleEmailVerificationCode     *string

	PushoverKey                  *string
	PushoverKeyVerified          bool
	PushoverEnabled              bool
	PushoverVerificationCodeTime *time.Time
	PushoverVerificationCode     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// KindleDestination returns the deliverable kindle e-mail address, or
// nil if the channel is not verified+enabled. Mirrors the eligibility
// rule applied identically to the push channel below.
func (d DeliveryMethod) KindleDestination() *string {
	if d.KindleEmailEnabled && d.KindleEmailVerified {
		return d.KindleEmail
	}
	return nil
}

// PushDestination returns the deliverable Pushover user key, or nil if
// the channel is not verified+enabled.
func (d DeliveryMethod) PushDestination() *string {
	if d.PushoverEnabled && d.PushoverKeyVerified {
		return d.PushoverKey
	}
	return nil
}
