package tracking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeworks/router/internal/model"
)

func allOn() model.TrackingSettings {
	return model.TrackingSettings{Click: true, Open: true, Unsubscribe: true, Channel: true}
}

func TestBuilderMintsRecords(t *testing.T) {
	b := NewBuilder("t1", "m1", "ch1", "user@example.com", "https://trk.example.com", allOn(), true)

	clickURL := b.Link("https://shop.example.com/x")
	pixelURL := b.OpenPixel()
	unsubURL := b.UnsubscribeLink()
	channelURL := b.ChannelRecord()

	records := b.Records()
	require.Len(t, records, 4)

	assert.Equal(t, model.TrackClick, records[0].Type)
	assert.Equal(t, "https://shop.example.com/x", records[0].URL)
	assert.Equal(t, clickURL, records[0].TrackingURL)
	assert.True(t, strings.HasPrefix(clickURL, "https://trk.example.com/r/"))

	assert.Equal(t, model.TrackOpen, records[1].Type)
	assert.Equal(t, pixelURL, records[1].TrackingURL)
	assert.Equal(t, model.TrackUnsubscribe, records[2].Type)
	assert.Equal(t, unsubURL, records[2].TrackingURL)
	assert.Equal(t, model.TrackChannel, records[3].Type)
	assert.Equal(t, channelURL, records[3].TrackingURL)

	for _, r := range records {
		assert.Equal(t, "t1", r.TenantID)
		assert.Equal(t, "m1", r.MessageID)
		assert.Equal(t, "ch1", r.ChannelID)
		assert.Equal(t, "user@example.com", r.Recipient)
	}

	ids := b.IDs()
	require.Len(t, ids, 4)
	assert.Contains(t, records[0].TrackingURL, ids[0])
}

func TestBuilderDisabled(t *testing.T) {
	b := NewBuilder("t1", "m1", "ch1", "", "https://trk.example.com", allOn(), false)

	assert.Equal(t, "https://x.example.com", b.Link("https://x.example.com"))
	assert.Empty(t, b.OpenPixel())
	assert.Empty(t, b.UnsubscribeLink())
	assert.Empty(t, b.ChannelRecord())
	assert.Empty(t, b.Records())
}

func TestBuilderPerSettingToggles(t *testing.T) {
	b := NewBuilder("t1", "m1", "ch1", "", "https://trk.example.com", model.TrackingSettings{Open: true}, true)

	// Click tracking off: passthrough without a record.
	assert.Equal(t, "https://x.example.com", b.Link("https://x.example.com"))
	assert.NotEmpty(t, b.OpenPixel())
	assert.Empty(t, b.UnsubscribeLink())
	require.Len(t, b.Records(), 1)
	assert.Equal(t, model.TrackOpen, b.Records()[0].Type)
}
