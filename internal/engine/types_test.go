package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceNames(t *testing.T) {
	tests := []struct {
		service Service
		name    string
	}{
		{ServiceYouTube, "Youtube"},
		{ServiceNicoNico, "NicoNicoDouga"},
		{ServiceBilibili, "Bilibili"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.service.String())
			assert.Equal(t, tt.service, ParseService(tt.name))
		})
	}
	assert.Equal(t, ServiceUnknown, ParseService("Vimeo"))
	assert.Equal(t, "Unknown", ServiceUnknown.String())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "deleted", OutcomeDeleted.String())
	assert.Equal(t, "not_found", OutcomeNotFound.String())
	assert.Equal(t, "unknown", OutcomeUnknown.String())
}

func TestZeroStats(t *testing.T) {
	s := ZeroStats()
	assert.False(t, s.Empty())
	for _, v := range []*int64{s.Views, s.Likes, s.Dislikes, s.Favorites} {
		if assert.NotNil(t, v) {
			assert.Zero(t, *v)
		}
	}
	assert.True(t, Stats{}.Empty())
}

func TestFormatMetrics(t *testing.T) {
	RecordOutcome(OutcomeDeleted)
	out := FormatMetrics()
	for _, k := range metricKeys {
		assert.True(t, strings.Contains(out, k+" "), "missing %s", k)
	}
	assert.GreaterOrEqual(t, GetMetrics()["outcome_deleted"], int64(1))
}
