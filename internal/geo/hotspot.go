package geo

// Hotspot is a computed point of high alert density. Hotspots are derived
// on demand from a snapshot of alert coordinates and are never persisted.
type Hotspot struct {
	Center  Point   `json:"center"`
	Density int     `json:"density"`
	Radius  float64 `json:"radius"`
}

// FindHotspots scans points for density-based hotspot centers: a point is
// a candidate when at least minPoints points (itself included) lie within
// radiusKm of it. Accepted candidates are checked in input order and a
// candidate is discarded when its center falls within radiusKm of an
// already-accepted hotspot, which suppresses near-duplicate centers for
// the same physical cluster. This greedy de-overlap is not true
// clustering: a single geographic cluster may still yield more than one
// hotspot when density varies across it.
//
// Complexity is O(n²) in the number of points; callers are expected to
// keep snapshots in the low thousands.
func FindHotspots(points []Point, radiusKm float64, minPoints int) []Hotspot {
	hotspots := []Hotspot{}

	for _, p := range points {
		count := 0
		for _, q := range points {
			if HaversineKm(p, q) <= radiusKm {
				count++
			}
		}
		if count < minPoints {
			continue
		}

		covered := false
		for _, h := range hotspots {
			if HaversineKm(p, h.Center) <= radiusKm {
				covered = true
				break
			}
		}
		if !covered {
			hotspots = append(hotspots, Hotspot{Center: p, Density: count, Radius: radiusKm})
		}
	}

	return hotspots
}
