// pkg/physics/octree.go
package physics

// Box represents an axis-aligned box given by its center and full extents
type Box struct {
	Center Vector3
	Size   Vector3
}

// BoxAround returns the cube of half-width radius centered on point
func BoxAround(point Vector3, radius float64) Box {
	return Box{Center: point, Size: Vector3{X: 2 * radius, Y: 2 * radius, Z: 2 * radius}}
}

func (b Box) min() Vector3 { return b.Center.Sub(b.Size.Scale(0.5)) }
func (b Box) max() Vector3 { return b.Center.Add(b.Size.Scale(0.5)) }

// Contains reports whether point lies inside the box. Upper faces are
// exclusive so neighbouring cells never both own a point.
func (b Box) Contains(point Vector3) bool {
	lo, hi := b.min(), b.max()
	return point.X >= lo.X && point.X < hi.X &&
		point.Y >= lo.Y && point.Y < hi.Y &&
		point.Z >= lo.Z && point.Z < hi.Z
}

// Covers is Contains with inclusive upper faces, used for queries
func (b Box) Covers(point Vector3) bool {
	lo, hi := b.min(), b.max()
	return point.X >= lo.X && point.X <= hi.X &&
		point.Y >= lo.Y && point.Y <= hi.Y &&
		point.Z >= lo.Z && point.Z <= hi.Z
}

// Intersects reports whether two boxes overlap
func (b Box) Intersects(other Box) bool {
	lo, hi := b.min(), b.max()
	olo, ohi := other.min(), other.max()
	return !(olo.X > hi.X || ohi.X < lo.X ||
		olo.Y > hi.Y || ohi.Y < lo.Y ||
		olo.Z > hi.Z || ohi.Z < lo.Z)
}

// Octree for spatial partitioning of static points. Each point carries an
// integer handle chosen by the caller.
type Octree struct {
	Boundary Box
	Capacity int
	Points   []Vector3
	Objects  []int
	Divided  bool
	Children [8]*Octree

	// overflow keeps points that fall outside the root boundary so they are
	// never lost; it is only used on the root
	overflowPoints  []Vector3
	overflowObjects []int
	depth           int
}

// maxOctreeDepth stops subdivision when many points share a location
const maxOctreeDepth = 16

// NewOctree creates a new octree with the given boundary and capacity
func NewOctree(boundary Box, capacity int) *Octree {
	if capacity < 1 {
		capacity = 1
	}
	return &Octree{
		Boundary: boundary,
		Capacity: capacity,
		Points:   make([]Vector3, 0, capacity),
		Objects:  make([]int, 0, capacity),
	}
}

// Insert adds a point. Points outside the root boundary are kept in an
// overflow list that every query scans.
func (ot *Octree) Insert(point Vector3, object int) {
	if ot.insert(point, object) {
		return
	}
	ot.overflowPoints = append(ot.overflowPoints, point)
	ot.overflowObjects = append(ot.overflowObjects, object)
}

func (ot *Octree) insert(point Vector3, object int) bool {
	if !ot.Boundary.Contains(point) {
		return false
	}

	if !ot.Divided && (len(ot.Points) < ot.Capacity || ot.depth >= maxOctreeDepth) {
		ot.Points = append(ot.Points, point)
		ot.Objects = append(ot.Objects, object)
		return true
	}

	if !ot.Divided {
		ot.Subdivide()
	}

	for _, child := range ot.Children {
		if child.insert(point, object) {
			return true
		}
	}
	// Rounding can leave a sliver between octants; keep such points here
	ot.Points = append(ot.Points, point)
	ot.Objects = append(ot.Objects, object)
	return true
}

// Subdivide splits the node into eight octants and pushes its points down
func (ot *Octree) Subdivide() {
	c := ot.Boundary.Center
	half := ot.Boundary.Size.Scale(0.5)
	quarter := ot.Boundary.Size.Scale(0.25)

	i := 0
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			for _, sz := range []float64{-1, 1} {
				center := Vector3{
					X: c.X + sx*quarter.X,
					Y: c.Y + sy*quarter.Y,
					Z: c.Z + sz*quarter.Z,
				}
				child := NewOctree(Box{Center: center, Size: half}, ot.Capacity)
				child.depth = ot.depth + 1
				ot.Children[i] = child
				i++
			}
		}
	}
	ot.Divided = true

	points, objects := ot.Points, ot.Objects
	ot.Points = nil
	ot.Objects = nil
	for idx, point := range points {
		placed := false
		for _, child := range ot.Children {
			if child.insert(point, objects[idx]) {
				placed = true
				break
			}
		}
		if !placed {
			ot.Points = append(ot.Points, point)
			ot.Objects = append(ot.Objects, objects[idx])
		}
	}
}

// Query returns the handles of all points inside area
func (ot *Octree) Query(area Box) []int {
	found := make([]int, 0)
	for i, point := range ot.overflowPoints {
		if area.Covers(point) {
			found = append(found, ot.overflowObjects[i])
		}
	}
	return ot.query(area, found)
}

func (ot *Octree) query(area Box, found []int) []int {
	if !ot.Boundary.Intersects(area) {
		return found
	}

	for i, point := range ot.Points {
		if area.Covers(point) {
			found = append(found, ot.Objects[i])
		}
	}

	if !ot.Divided {
		return found
	}

	for _, child := range ot.Children {
		found = child.query(area, found)
	}
	return found
}

// Len returns the number of stored points
func (ot *Octree) Len() int {
	n := len(ot.Points) + len(ot.overflowPoints)
	if ot.Divided {
		for _, child := range ot.Children {
			n += child.Len()
		}
	}
	return n
}
