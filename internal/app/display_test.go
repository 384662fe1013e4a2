package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/blockpath/internal/geo"
	"github.com/relabs-tech/blockpath/internal/navigation"
)

func litPixels(img *image1bit.VerticalLSB, x0, y0, x1, y1 int) int {
	n := 0
	for x := x0; x < x1; x++ {
		for y := y0; y < y1; y++ {
			if img.BitAt(x, y) == image1bit.On {
				n++
			}
		}
	}
	return n
}

func navSnapshot(rotation float64) navigation.Snapshot {
	bearing, distance := 90.0, 1.25
	return navigation.Snapshot{
		Current:    &geo.Point{Latitude: 0, Longitude: 0},
		Target:     &geo.Point{Latitude: 0, Longitude: 1},
		Bearing:    &bearing,
		DistanceKm: &distance,
		Rotation:   rotation,
		Compass:    "E",
		Seq:        1,
	}
}

func TestRenderNavigationArrow(t *testing.T) {
	tests := []struct {
		name     string
		rotation float64
		lit      [2]int // a pixel on the needle shaft
		dark     [2]int // a pixel on the opposite side
	}{
		{"ahead", 0, [2]int{32, 15}, [2]int{32, 52}},
		{"right", 90, [2]int{50, 32}, [2]int{12, 32}},
		{"behind", 180, [2]int{32, 50}, [2]int{32, 12}},
		{"left", -90, [2]int{14, 32}, [2]int{52, 32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := renderNavigation(navSnapshot(tt.rotation), true)
			assert.Equal(t, image1bit.On, img.BitAt(tt.lit[0], tt.lit[1]))
			assert.Equal(t, image1bit.Off, img.BitAt(tt.dark[0], tt.dark[1]))
			// text column is populated
			assert.Greater(t, litPixels(img, 64, 0, 128, 64), 0)
		})
	}
}

func TestRenderNavigationWithoutTarget(t *testing.T) {
	snap := navigation.Snapshot{Current: &geo.Point{}, Seq: 1}
	img := renderNavigation(snap, true)
	// no needle, only text
	assert.Equal(t, image1bit.Off, img.BitAt(arrowCenterX, arrowCenterY-20))
	assert.Greater(t, litPixels(img, 0, 0, 128, 64), 0)

	waiting := renderNavigation(navigation.Snapshot{}, false)
	assert.Greater(t, litPixels(waiting, 0, 0, 128, 64), 0)
	assert.Equal(t, 0, litPixels(waiting, 0, 45, 128, 64))
}

func TestRenderSplash(t *testing.T) {
	assert.Greater(t, litPixels(renderSplash(), 0, 0, 128, 64), 0)
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		km       float64
		expected string
	}{
		{0, "0 m"},
		{0.0504, "50 m"},
		{0.999, "999 m"},
		{1.25, "1.25 km"},
		{111.19, "111 km"},
		{12490.3, "12490 km"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatDistance(tt.km))
	}
}

func TestDisplayDataKeepsNewest(t *testing.T) {
	d := &DisplayData{}
	_, ok := d.latest()
	assert.False(t, ok)

	d.update(navigation.Snapshot{Seq: 4, Heading: 40})
	d.update(navigation.Snapshot{Seq: 2, Heading: 20})
	snap, ok := d.latest()
	assert.True(t, ok)
	assert.Equal(t, 40.0, snap.Heading)

	d.update(navigation.Snapshot{Seq: 5, Heading: 50})
	snap, _ = d.latest()
	assert.Equal(t, 50.0, snap.Heading)
}

func TestAddrBusRewritesAddress(t *testing.T) {
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x3D, W: []byte{0x00, 0xAE}},
		},
	}
	bus := &addrBus{Bus: playback, addr: 0x3D}

	require.NoError(t, bus.Tx(0x3C, []byte{0x00, 0xAE}, nil))
	assert.NoError(t, playback.Close())
}
