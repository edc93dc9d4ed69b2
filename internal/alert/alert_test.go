package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wave_trader/internal/mock"
	"wave_trader/pkg/logging"
)

type recordingChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []Payload
}

func (r *recordingChannel) Name() string { return r.name }

func (r *recordingChannel) Send(ctx context.Context, alert Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, alert)
	return r.err
}

func (r *recordingChannel) getSent() []Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Payload, len(r.sent))
	copy(out, r.sent)
	return out
}

func TestManagerFansOutToAllChannels(t *testing.T) {
	am := NewManager(logging.NewNop())
	ch1 := &recordingChannel{name: "ch1"}
	ch2 := &recordingChannel{name: "ch2"}
	am.AddChannel(ch1)
	am.AddChannel(ch2)

	am.Alert(context.Background(), "Target completed", "Target 7 is completed", Info,
		map[string]string{"target_id": "7"})

	require.Eventually(t, func() bool {
		return len(ch1.getSent()) == 1 && len(ch2.getSent()) == 1
	}, time.Second, 5*time.Millisecond)

	payload := ch1.getSent()[0]
	assert.Equal(t, Info, payload.Level)
	assert.Equal(t, "Target completed", payload.Title)
	assert.Equal(t, "7", payload.Fields["target_id"])
	assert.False(t, payload.Timestamp.IsZero())
}

func TestManagerSurvivesChannelFailure(t *testing.T) {
	am := NewManager(logging.NewNop())
	failing := &recordingChannel{name: "failing", err: errors.New("boom")}
	healthy := &recordingChannel{name: "healthy"}
	am.AddChannel(failing)
	am.AddChannel(healthy)

	am.Alert(context.Background(), "Test", "message", Warning, nil)

	require.Eventually(t, func() bool {
		return len(healthy.getSent()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAlertSyncDeliversBeforeReturning(t *testing.T) {
	am := NewManager(logging.NewNop())
	ch1 := &recordingChannel{name: "ch1"}
	ch2 := &recordingChannel{name: "ch2"}
	am.AddChannel(ch1)
	am.AddChannel(ch2)

	am.AlertSync(context.Background(), "Target completed", "Target 7 is completed", Info, nil)

	// No Eventually here: delivery must have happened by the time the
	// call returns.
	require.Len(t, ch1.getSent(), 1)
	require.Len(t, ch2.getSent(), 1)
	assert.Equal(t, "Target completed", ch1.getSent()[0].Title)
}

func TestAlertSyncSurvivesChannelFailure(t *testing.T) {
	am := NewManager(logging.NewNop())
	failing := &recordingChannel{name: "failing", err: errors.New("boom")}
	healthy := &recordingChannel{name: "healthy"}
	am.AddChannel(failing)
	am.AddChannel(healthy)

	am.AlertSync(context.Background(), "Test", "message", Warning, nil)

	require.Len(t, healthy.getSent(), 1)
}

func TestVenueChannelPostsSeverityAsType(t *testing.T) {
	disp := mock.NewDispatcher()
	ch := NewVenueChannel(disp, "trader")

	err := ch.Send(context.Background(), Payload{
		Level:   Critical,
		Title:   "Run failed",
		Message: "venue rejected the batch",
	})
	require.NoError(t, err)

	alerts := disp.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "trader", alerts[0].User)
	assert.Equal(t, string(Critical), alerts[0].Type)
	assert.Equal(t, "Run failed: venue rejected the batch", alerts[0].Description)
	assert.True(t, alerts[0].Urgent)
}

func TestVenueChannelInfoIsNotUrgent(t *testing.T) {
	disp := mock.NewDispatcher()
	ch := NewVenueChannel(disp, "trader")

	require.NoError(t, ch.Send(context.Background(), Payload{Level: Info, Title: "ok"}))
	require.Len(t, disp.Alerts(), 1)
	assert.Equal(t, string(Info), disp.Alerts()[0].Type)
	assert.Equal(t, "ok", disp.Alerts()[0].Description)
	assert.False(t, disp.Alerts()[0].Urgent)
}
