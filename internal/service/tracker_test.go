package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/lock"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

func sentCampaign(t *testing.T, f *fixture, n int) *model.Campaign {
	t.Helper()
	u := f.store.addUser(model.PlanStarter)
	c := f.sendingCampaign(t, u.ID, n)
	_, err := f.pipeline().Run(context.Background(), c.ID)
	require.NoError(t, err)
	return c
}

func newTracker(f *fixture) *service.EventTracker {
	return &service.EventTracker{
		EmailRepo: f.emails,
		Deduper:   lock.NewMemoryDeduper(time.Hour),
		Log:       zap.NewNop(),
	}
}

func TestTrackFirstOccurrenceOnly(t *testing.T) {
	f := newFixture()
	c := sentCampaign(t, f, 1)
	email := f.store.emailsOf(c.ID)[0]
	tr := newTracker(f)
	ctx := context.Background()

	first := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	out, err := tr.Track(ctx, service.TrackInput{EmailID: email.ID, Type: model.EventOpen, At: first})
	require.NoError(t, err)
	assert.True(t, out.First)
	assert.Equal(t, c.ID, out.CampaignID)

	out, err = tr.Track(ctx, service.TrackInput{EmailID: email.ID, Type: model.EventOpen, At: first.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, out.First)

	e := f.store.emailsOf(c.ID)[0]
	require.NotNil(t, e.OpenedAt)
	assert.Equal(t, first, *e.OpenedAt)
	assert.Equal(t, 2, e.OpenCount)
	assert.Equal(t, 1, f.store.campaign(c.ID).OpensCount)
	assert.Len(t, f.store.events, 2)
}

func TestTrackUnsubscribeUpdatesContact(t *testing.T) {
	f := newFixture()
	c := sentCampaign(t, f, 1)
	email := f.store.emailsOf(c.ID)[0]

	_, err := newTracker(f).Track(context.Background(), service.TrackInput{EmailID: email.ID, Type: model.EventUnsubscribe})
	require.NoError(t, err)
	assert.Equal(t, model.ContactUnsubscribed, f.store.contacts[email.ContactID].Status)
	assert.Equal(t, 1, f.store.campaign(c.ID).UnsubscribesCount)
}

func TestTrackRejectsUnknownInput(t *testing.T) {
	f := newFixture()
	tr := newTracker(f)

	_, err := tr.Track(context.Background(), service.TrackInput{EmailID: 1, Type: "deferred"})
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.StatusCode(err))

	_, err = tr.Track(context.Background(), service.TrackInput{EmailID: 999, Type: model.EventOpen})
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestHandleSendGridEvents(t *testing.T) {
	f := newFixture()
	c := sentCampaign(t, f, 2)
	emails := f.store.emailsOf(c.ID)
	require.NotNil(t, emails[1].MessageID)
	tr := newTracker(f)

	body := fmt.Sprintf(`[
		{"event":"open","sg_event_id":"ev1","email_id":"%d","timestamp":1714550400,"useragent":"Mozilla/5.0 (iPhone)"},
		{"event":"open","sg_event_id":"ev1","email_id":"%d","timestamp":1714550400},
		{"event":"click","sg_event_id":"ev2","sg_message_id":"%s.filter0001","url":"https://shop.example"},
		{"event":"delivered","sg_event_id":"ev3","email_id":"%d"},
		{"event":"bounce","sg_event_id":"ev4","email_id":"424242","reason":"550"},
		{"event":"spamreport","sg_event_id":"ev5"}
	]`, emails[0].ID, emails[0].ID, *emails[1].MessageID, emails[0].ID)

	sum, err := tr.HandleSendGridEvents(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, &service.WebhookSummary{Received: 6, Applied: 2, Duplicates: 1, Ignored: 2, NotFound: 1}, sum)

	require.Len(t, f.store.events, 2)
	assert.Equal(t, "mobile", f.store.events[0].Metadata["device_type"])
	assert.Equal(t, "https://shop.example", f.store.events[1].Metadata["url"])
	assert.Equal(t, emails[1].ID, f.store.events[1].EmailID)

	// redelivering the whole batch applies nothing new
	sum, err = tr.HandleSendGridEvents(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Applied)
	assert.Len(t, f.store.events, 2)
}

func TestHandleSendGridEventsBadPayload(t *testing.T) {
	_, err := newTracker(newFixture()).HandleSendGridEvents(context.Background(), []byte(`{"not":"an array"}`))
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.StatusCode(err))
}
