package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/blockpath/internal/geo"
	"github.com/relabs-tech/blockpath/internal/gps"
	"github.com/relabs-tech/blockpath/internal/heading"
	"github.com/relabs-tech/blockpath/internal/logging"
	"github.com/relabs-tech/blockpath/internal/navigation"
)

func TestFormatSnapshot(t *testing.T) {
	assert.Equal(t, "[NAV #0] here=-- dest=-- hdg=  0.00 brg=-- dist=--",
		formatSnapshot(navigation.Snapshot{}))

	assert.Equal(t,
		"[NAV #7] here=0.0000, 0.0000 dest=0.0000, 1.0000 hdg= 30.00 brg= 90.00 (E) dist=111 km turn= +60.00",
		formatSnapshot(navSnapshotAt(30, 60, 111.19, 7)))

	assert.Contains(t, formatSnapshot(navSnapshotAt(100, -10, 0.25, 8)), "dist=250 m turn= -10.00")
}

func navSnapshotAt(headingDeg, rotation, distanceKm float64, seq uint64) navigation.Snapshot {
	bearing := 90.0
	return navigation.Snapshot{
		Current:    &geo.Point{Latitude: 0, Longitude: 0},
		Target:     &geo.Point{Latitude: 0, Longitude: 1},
		Heading:    headingDeg,
		Bearing:    &bearing,
		DistanceKm: &distanceKm,
		Rotation:   rotation,
		Compass:    "E",
		Seq:        seq,
	}
}

func TestConsolePrinter(t *testing.T) {
	var out bytes.Buffer
	p := &consolePrinter{out: &out, logger: logging.Discard()}

	snap, err := json.Marshal(navSnapshotAt(0, 90, 1.5, 3))
	require.NoError(t, err)
	p.printSnapshot(snap)

	fix, err := json.Marshal(gps.Fix{Time: "12:35:19", Latitude: 48.1173, Longitude: 11.516667, Validity: "A"})
	require.NoError(t, err)
	p.printFix(fix)

	sample, err := json.Marshal(heading.Sample{X: 0, Y: 2})
	require.NoError(t, err)
	p.printSample(sample)

	p.printSnapshot([]byte("{"))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "[NAV #3]")
	assert.Contains(t, string(lines[0]), "dist=1.50 km")
	assert.Contains(t, string(lines[1]), "lat=48.117300 lon=11.516667")
	assert.Contains(t, string(lines[2]), "heading= 90.00")
}
