// pkg/physics/collision.go
package physics

// Sphere represents a spherical collision shape
type Sphere struct {
	Center Vector3
	Radius float64
}

// Collides checks if two spheres overlap. Touching spheres do not collide
func (s Sphere) Collides(other Sphere) bool {
	reach := s.Radius + other.Radius
	return s.Center.Sub(other.Center).LengthSquared() < reach*reach
}

// Disc is a flat circular opening: a gate the craft has to fly through
type Disc struct {
	Center Vector3
	Normal Vector3
	Radius float64
}

// SignedDistance returns the distance of point from the disc plane, positive
// on the side the normal points to
func (d Disc) SignedDistance(point Vector3, normal Vector3) float64 {
	return point.Sub(d.Center).Dot(normal)
}

// Side returns the sign of point's signed distance from the disc plane: +1
// on the side the normal points to, -1 behind it and 0 on the plane or when
// the disc has no usable normal.
func (d Disc) Side(point Vector3) float64 {
	normal, err := d.Normal.Normalize()
	if err != nil || !point.IsFinite() {
		return 0
	}
	return sign(d.SignedDistance(point, normal))
}

// CheckGatePassage reports whether the segment prev->curr crosses the gate
// plane inside the gate radius. The test is swept so fast crossings that
// never sample a point near the plane are still detected. The endpoints must
// lie strictly on opposite sides; use CheckGatePassageFrom when a segment
// may start on the plane.
func CheckGatePassage(prev, curr Vector3, gate Disc) bool {
	return CheckGatePassageFrom(prev, curr, gate, 0)
}

// CheckGatePassageFrom is CheckGatePassage for a craft whose last position
// off the plane was on side approach (see Disc.Side, 0 when unknown). A
// segment that starts exactly on the plane counts only when it leaves
// towards the side opposite approach. A segment that ends on the plane never
// counts; the one that leaves it decides.
func CheckGatePassageFrom(prev, curr Vector3, gate Disc, approach float64) bool {
	if !prev.IsFinite() || !curr.IsFinite() || !(gate.Radius > 0) {
		return false
	}
	normal, err := gate.Normal.Normalize()
	if err != nil {
		return false
	}

	d0 := gate.SignedDistance(prev, normal)
	d1 := gate.SignedDistance(curr, normal)
	s0, s1 := sign(d0), sign(d1)
	if s0 == 0 {
		s0 = sign(approach)
	}
	if s0 == 0 || s1 == 0 || s0 == s1 {
		return false
	}

	t := d0 / (d0 - d1)
	hit := prev.Add(curr.Sub(prev).Scale(t))
	return hit.Sub(gate.Center).LengthSquared() <= gate.Radius*gate.Radius
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// CheckObstacleCollision reports whether a body sphere at pos overlaps the obstacle
func CheckObstacleCollision(pos Vector3, bodyRadius float64, obstacle Sphere) bool {
	return Sphere{Center: pos, Radius: bodyRadius}.Collides(obstacle)
}

// Contact contains information about a sphere overlap
type Contact struct {
	Collided     bool
	Normal       Vector3 // unit vector from A towards B
	Penetration  float64
	ContactPoint Vector3
}

// CheckContact performs detailed collision detection between two spheres
func CheckContact(a, b Sphere) Contact {
	// Vector from A to B
	offset := b.Center.Sub(a.Center)
	distance := offset.Length()

	if !a.Collides(b) {
		return Contact{Collided: false}
	}

	penetration := a.Radius + b.Radius - distance

	// Concentric spheres have no defined normal; push along +Y
	normal, err := offset.Normalize()
	if err != nil {
		normal = AxisY
	}

	return Contact{
		Collided:     true,
		Normal:       normal,
		Penetration:  penetration,
		ContactPoint: a.Center.Add(normal.Scale(a.Radius)),
	}
}
