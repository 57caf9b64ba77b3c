package song

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanStatus_String(t *testing.T) {
	assert.Equal(t, "not_scanned", StatusNotScanned.String())
	assert.Equal(t, "no_results", StatusNoResults.String())
	assert.Equal(t, "plain_only", StatusPlainOnly.String())
	assert.Equal(t, "synced", StatusSynced.String())
	assert.Equal(t, "unknown", ScanStatus(42).String())
}

func TestScanStatus_Terminal(t *testing.T) {
	assert.False(t, StatusNotScanned.Terminal())
	assert.True(t, StatusNoResults.Terminal())
	assert.True(t, StatusPlainOnly.Terminal())
	assert.True(t, StatusSynced.Terminal())
}

func TestScanStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from ScanStatus
		to   ScanStatus
		want bool
	}{
		{"NotScanned to Synced", StatusNotScanned, StatusSynced, true},
		{"NotScanned to PlainOnly", StatusNotScanned, StatusPlainOnly, true},
		{"NotScanned to NoResults", StatusNotScanned, StatusNoResults, true},
		{"PlainOnly upgrades to Synced", StatusPlainOnly, StatusSynced, true},
		{"PlainOnly to NoResults rejected", StatusPlainOnly, StatusNoResults, false},
		{"Synced never regresses", StatusSynced, StatusNotScanned, false},
		{"Synced to PlainOnly rejected", StatusSynced, StatusPlainOnly, false},
		{"NoResults to Synced rejected", StatusNoResults, StatusSynced, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestNeedsScan(t *testing.T) {
	assert.True(t, NeedsScan(StatusNotScanned, false))
	assert.False(t, NeedsScan(StatusSynced, false))
	assert.False(t, NeedsScan(StatusNoResults, false))
	assert.False(t, NeedsScan(StatusPlainOnly, false))

	// A category word-list change forces a rescan regardless of status.
	assert.True(t, NeedsScan(StatusSynced, true))
	assert.True(t, NeedsScan(StatusNoResults, true))
}
