package model

import "time"

// ChannelAddress is a per-user destination for one channel (phone number,
// chat handle, device token). Disabled addresses must suppress sends.
type ChannelAddress struct {
	ID             string
	TenantID       string
	UserID         string
	Channel        string
	Address        string
	Verified       bool
	BounceCount    int
	ComplaintCount int
	Disabled       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Usable reports whether the address may receive sends.
func (a *ChannelAddress) Usable() bool {
	return a != nil && !a.Disabled && a.Address != ""
}
