package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/field"
	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
)

// ShapeTable maps particle types to immutable shapes. Updaters swap entries
// wholesale; a shape value is never modified.
type ShapeTable struct {
	shapes []shape.Shape
	names  []string
}

// NewShapeTable creates a table with one entry per type.
func NewShapeTable(shapes ...shape.Shape) *ShapeTable {
	t := &ShapeTable{shapes: append([]shape.Shape(nil), shapes...), names: make([]string, len(shapes))}
	for i := range t.names {
		t.names[i] = fmt.Sprintf("type_%d", i)
	}
	return t
}

// Len is the number of types.
func (t *ShapeTable) Len() int { return len(t.shapes) }

// Get returns the shape of type typ.
func (t *ShapeTable) Get(typ int) shape.Shape { return t.shapes[typ] }

// Set replaces the shape of type typ.
func (t *ShapeTable) Set(typ int, s shape.Shape) error {
	if typ < 0 || typ >= len(t.shapes) {
		return fmt.Errorf("%w: type %d out of range [0,%d)", ErrInvalidConfig, typ, len(t.shapes))
	}
	if s == nil {
		return fmt.Errorf("%w: type %d shape is nil", ErrInvalidConfig, typ)
	}
	t.shapes[typ] = s
	return nil
}

// Name returns the display name of a type.
func (t *ShapeTable) Name(typ int) string { return t.names[typ] }

// SetName sets the display name of a type.
func (t *ShapeTable) SetName(typ int, name string) { t.names[typ] = name }

// MaxDiameter returns the largest circumsphere diameter over all types.
func (t *ShapeTable) MaxDiameter() float64 {
	m := 0.0
	for _, s := range t.shapes {
		m = math.Max(m, s.CircumsphereDiameter())
	}
	return m
}

// Clone returns a table sharing the (immutable) shape values.
func (t *ShapeTable) Clone() *ShapeTable {
	return &ShapeTable{shapes: append([]shape.Shape(nil), t.shapes...), names: append([]string(nil), t.names...)}
}

// System is the particle state: box, shape table and struct-of-arrays
// particle data. Index order is not stable across Remove.
type System struct {
	Box          geom.Box
	Shapes       *ShapeTable
	Positions    []r3.Vec
	Orientations []quat.Number
	Types        []int
	Tags         []uint64

	nextTag uint64
}

// NewSystem creates an empty system.
func NewSystem(box geom.Box, shapes *ShapeTable) *System {
	return &System{Box: box, Shapes: shapes}
}

// Len is the particle count.
func (s *System) Len() int { return len(s.Positions) }

// Position returns the position of particle i.
func (s *System) Position(i int) r3.Vec { return s.Positions[i] }

// Pose returns the pose of particle i.
func (s *System) Pose(i int) geom.Pose {
	return geom.Pose{Position: s.Positions[i], Orientation: s.Orientations[i]}
}

// SetPose overwrites the pose of particle i.
func (s *System) SetPose(i int, p geom.Pose) {
	s.Positions[i] = p.Position
	s.Orientations[i] = p.Orientation
}

// Particle returns the field view of particle i.
func (s *System) Particle(i int) field.Particle {
	return field.Particle{Tag: s.Tags[i], Type: s.Types[i], Shape: s.Shapes.Get(s.Types[i]), Pose: s.Pose(i)}
}

// ProbeTag is the tag of test particles that are never inserted.
const ProbeTag = math.MaxUint64

// Probe returns the field view of a test particle of type typ at pose.
func (s *System) Probe(typ int, p geom.Pose) field.Particle {
	return field.Particle{Tag: ProbeTag, Type: typ, Shape: s.Shapes.Get(typ), Pose: p}
}

// Add appends a particle with a fresh tag and returns its index and tag.
func (s *System) Add(typ int, p geom.Pose) (int, uint64) {
	tag := s.nextTag
	s.nextTag++
	s.addTagged(typ, p, tag)
	return len(s.Positions) - 1, tag
}

func (s *System) addTagged(typ int, p geom.Pose, tag uint64) {
	s.Positions = append(s.Positions, p.Position)
	s.Orientations = append(s.Orientations, p.Orientation)
	s.Types = append(s.Types, typ)
	s.Tags = append(s.Tags, tag)
	if tag >= s.nextTag {
		s.nextTag = tag + 1
	}
}

// Remove deletes particle i by moving the last particle into its slot.
func (s *System) Remove(i int) {
	last := len(s.Positions) - 1
	s.Positions[i] = s.Positions[last]
	s.Orientations[i] = s.Orientations[last]
	s.Types[i] = s.Types[last]
	s.Tags[i] = s.Tags[last]
	s.Positions = s.Positions[:last]
	s.Orientations = s.Orientations[:last]
	s.Types = s.Types[:last]
	s.Tags = s.Tags[:last]
}

// CountByType returns the number of particles of each type.
func (s *System) CountByType() []int {
	counts := make([]int, s.Shapes.Len())
	for _, t := range s.Types {
		counts[t]++
	}
	return counts
}

// Clone deep-copies the particle arrays. The shape table is cloned too.
func (s *System) Clone() *System {
	return &System{
		Box:          s.Box,
		Shapes:       s.Shapes.Clone(),
		Positions:    append([]r3.Vec(nil), s.Positions...),
		Orientations: append([]quat.Number(nil), s.Orientations...),
		Types:        append([]int(nil), s.Types...),
		Tags:         append([]uint64(nil), s.Tags...),
		nextTag:      s.nextTag,
	}
}

// subset copies the listed particles into a new system that shares the box
// and shape table. Tags are kept.
func (s *System) subset(idx ...[]int) *System {
	out := &System{Box: s.Box, Shapes: s.Shapes, nextTag: s.nextTag}
	for _, list := range idx {
		for _, i := range list {
			out.addTagged(s.Types[i], s.Pose(i), s.Tags[i])
		}
	}
	return out
}

// Validate checks the box, shapes and every particle record.
func (s *System) Validate() error {
	if err := s.Box.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if s.Shapes == nil || s.Shapes.Len() == 0 {
		return fmt.Errorf("%w: at least one particle type is required", ErrInvalidConfig)
	}
	for t := 0; t < s.Shapes.Len(); t++ {
		sh := s.Shapes.Get(t)
		if sh == nil {
			return fmt.Errorf("%w: type %d has no shape", ErrInvalidConfig, t)
		}
		if d := sh.Dimensions(); d != 0 && d != s.Box.Dimensions {
			return fmt.Errorf("%w: type %d is a %dD shape in a %dD box", ErrInvalidConfig, t, d, s.Box.Dimensions)
		}
	}
	n := len(s.Positions)
	if len(s.Orientations) != n || len(s.Types) != n || len(s.Tags) != n {
		return fmt.Errorf("%w: particle arrays have mismatched lengths", ErrInvalidConfig)
	}
	for i := 0; i < n; i++ {
		if t := s.Types[i]; t < 0 || t >= s.Shapes.Len() {
			return fmt.Errorf("%w: particle %d has unknown type %d", ErrInvalidConfig, i, t)
		}
		p := s.Positions[i]
		if math.IsNaN(p.X+p.Y+p.Z) || math.IsInf(p.X+p.Y+p.Z, 0) {
			return fmt.Errorf("%w: particle %d position is not finite", ErrInvalidConfig, i)
		}
		if !geom.IsUnit(s.Orientations[i]) {
			return fmt.Errorf("%w: particle %d orientation is not a unit quaternion", ErrInvalidConfig, i)
		}
		if s.Box.Dimensions == 2 {
			if p.Z != 0 {
				return fmt.Errorf("%w: particle %d leaves the plane (z = %f)", ErrInvalidConfig, i, p.Z)
			}
			if !geom.IsPlanar(s.Orientations[i]) {
				return fmt.Errorf("%w: particle %d orientation is not a rotation about z", ErrInvalidConfig, i)
			}
		}
	}
	return nil
}
