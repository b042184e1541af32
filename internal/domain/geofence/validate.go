package geofence

import "github.com/paulmach/orb"

// selfIntersects reports whether any two edges of the open ring cross or touch
// outside their shared vertex, or whether adjacent edges fold back on each other.
func selfIntersects(ring orb.Ring) bool {
	n := len(ring)
	edge := func(i int) (orb.Point, orb.Point) {
		return ring[i], ring[(i+1)%n]
	}

	for i := 0; i < n; i++ {
		a, b := edge(i)
		c := ring[(i+2)%n]
		if orientation(a, b, c) == 0 && dot(sub(b, a), sub(c, b)) < 0 {
			return true
		}
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			p, q := edge(j)
			if segmentsIntersect(a, b, p, q) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	o1 := orientation(p1, p2, q1)
	o2 := orientation(p1, p2, q2)
	o3 := orientation(q1, q2, p1)
	o4 := orientation(q1, q2, p2)

	if o1 != o2 && o3 != o4 {
		return true
	}
	switch {
	case o1 == 0 && onSegment(p1, q1, p2):
		return true
	case o2 == 0 && onSegment(p1, q2, p2):
		return true
	case o3 == 0 && onSegment(q1, p1, q2):
		return true
	case o4 == 0 && onSegment(q1, p2, q2):
		return true
	}
	return false
}

// orientation returns 0 for collinear, 1 for clockwise, 2 for counter-clockwise.
func orientation(a, b, c orb.Point) int {
	v := (b[1]-a[1])*(c[0]-b[0]) - (b[0]-a[0])*(c[1]-b[1])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return 2
	default:
		return 0
	}
}

// onSegment reports whether q lies within the bounding box of segment p-r.
func onSegment(p, q, r orb.Point) bool {
	return q[0] <= max(p[0], r[0]) && q[0] >= min(p[0], r[0]) &&
		q[1] <= max(p[1], r[1]) && q[1] >= min(p[1], r[1])
}

func sub(a, b orb.Point) orb.Point {
	return orb.Point{a[0] - b[0], a[1] - b[1]}
}

func dot(a, b orb.Point) float64 {
	return a[0]*b[0] + a[1]*b[1]
}
