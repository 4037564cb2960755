package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadnexus/subiq/internal/model"
)

const feedHeader = "date,vertical,traffic_type,tier,subid,calls,paid_calls,qual_paid_calls,leads,transfer_count,clicks,redirects,call_rev,lead_rev,click_rev,redirect_rev,total_rev"

func TestParseFeed(t *testing.T) {
	input := feedHeader + "\n" +
		"2026-02-10,medicare,full_oo,premium,sub-1,100,80,60,0,0,5,2,1200.50,0,10,4,1214.50\n" +
		"2026-02-10,health,non_oo,standard,sub-2,0,0,0,200,30,0,0,0,\"$1,800.00\",0,0,1800\n"

	facts, skipped, err := ParseFeed(strings.NewReader(input))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, facts, 2)

	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), facts[0].Date)
	assert.Equal(t, model.VerticalMedicare, facts[0].Vertical)
	assert.Equal(t, model.TrafficFullOO, facts[0].TrafficType)
	assert.Equal(t, model.ChannelPremium, facts[0].Tier)
	assert.Equal(t, int64(60), facts[0].QualPaidCalls)
	assert.InDelta(t, 1200.50, facts[0].CallRev, 1e-9)

	assert.Equal(t, "sub-2", facts[1].SubID)
	assert.InDelta(t, 1800.0, facts[1].LeadRev, 1e-9)
}

func TestParseFeedSkipsBadRows(t *testing.T) {
	input := feedHeader + "\n" +
		"2026-02-10,medicare,full_oo,premium,sub-1,100,80,60,0,0,0,0,100,0,0,0,100\n" +
		"not-a-date,medicare,full_oo,premium,sub-2,1,1,1,0,0,0,0,0,0,0,0,0\n" +
		"2026-02-10,plumbing,full_oo,premium,sub-3,1,1,1,0,0,0,0,0,0,0,0,0\n" +
		"2026-02-10,medicare,full_oo,premium,sub-4,10,20,5,0,0,0,0,0,0,0,0,0\n"

	facts, skipped, err := ParseFeed(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "sub-1", facts[0].SubID)
	// Bad date, unknown vertical, and paid_calls above calls are all rejected.
	assert.Equal(t, 3, skipped)
}

func TestParseFeedMissingColumn(t *testing.T) {
	input := "date,vertical,subid\n2026-02-10,medicare,sub-1\n"
	_, _, err := ParseFeed(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestParseFeedHeaderCaseInsensitive(t *testing.T) {
	input := strings.ToUpper(feedHeader) + "\n" +
		"2026-02-10,medicare,full_oo,premium,sub-1,10,8,6,0,0,0,0,50,0,0,0,50\n"

	facts, skipped, err := ParseFeed(strings.NewReader(input))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, facts, 1)
}

func TestParseFeedEmptySubID(t *testing.T) {
	input := feedHeader + "\n" +
		"2026-02-10,medicare,full_oo,premium,,10,8,6,0,0,0,0,50,0,0,0,50\n"

	facts, skipped, err := ParseFeed(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, facts)
	assert.Equal(t, 1, skipped)
}
