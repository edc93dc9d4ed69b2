package alert

import (
	"context"

	"wave_trader/internal/core"
)

// VenueChannel posts alerts back to the execution venue so they show up in
// the venue operator's blotter alongside the targets they concern.
type VenueChannel struct {
	dispatcher core.Dispatcher
	user       string
}

func NewVenueChannel(dispatcher core.Dispatcher, user string) *VenueChannel {
	return &VenueChannel{dispatcher: dispatcher, user: user}
}

func (v *VenueChannel) Name() string {
	return "venue"
}

// Send posts the severity as the venue alert type; the title travels in
// the description alongside the message.
func (v *VenueChannel) Send(ctx context.Context, alert Payload) error {
	description := alert.Message
	if alert.Title != "" {
		if description == "" {
			description = alert.Title
		} else {
			description = alert.Title + ": " + description
		}
	}

	return v.dispatcher.PostAlert(ctx, core.Alert{
		User:        v.user,
		Type:        string(alert.Level),
		Description: description,
		Urgent:      alert.Level == Error || alert.Level == Critical,
	})
}
