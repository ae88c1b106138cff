package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZoneTradable(t *testing.T) {
	for _, z := range TradableZones() {
		assert.True(t, z.Tradable(), "zone %s", z)
	}
	assert.False(t, ZoneNone.Tradable())
	assert.False(t, ZoneDead.Tradable())
	assert.False(t, Zone("MOON").Tradable())
}

func TestZoneDirection(t *testing.T) {
	assert.Equal(t, DirectionRunner, ZoneEarly.Direction())
	assert.Equal(t, DirectionRunner, ZoneLate.Direction())
	assert.Equal(t, DirectionCollapse, ZoneEarlyCollapse.Direction())
	assert.Equal(t, DirectionCollapse, ZoneExtendedCollapse.Direction())
	assert.Equal(t, Direction(""), ZoneNone.Direction())
	assert.Equal(t, Direction(""), ZoneDead.Direction())
}

func TestZoneString(t *testing.T) {
	assert.Equal(t, "NONE", Zone("").String())
	assert.Equal(t, "STRONG_COLLAPSE", ZoneStrongCollapse.String())
}
