package cmd

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hpmc-sim/hpmc-sim/sim"
	"github.com/hpmc-sim/hpmc-sim/sim/cluster"
	"github.com/hpmc-sim/hpmc-sim/sim/field"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
	"github.com/hpmc-sim/hpmc-sim/sim/trace"
)

// Scenario is the YAML description of one simulation run.
// All sections must be listed to satisfy KnownFields(true) strict parsing.
type Scenario struct {
	Seed       int64          `yaml:"seed"`
	Sweeps     int            `yaml:"sweeps"`
	Box        BoxSpec        `yaml:"box"`
	Types      []TypeSpec     `yaml:"types"`
	Lattice    []LatticeSpec  `yaml:"lattice,omitempty"`
	Particles  []ParticleSpec `yaml:"particles,omitempty"`
	Integrator IntegratorSpec `yaml:"integrator"`
	Fields     FieldsSpec     `yaml:"fields,omitempty"`
	Updaters   UpdatersSpec   `yaml:"updaters,omitempty"`
	Trace      string         `yaml:"trace,omitempty"`
}

// BoxSpec describes the simulation cell. L has one entry per dimension.
type BoxSpec struct {
	L        []float64 `yaml:"l"`
	XY       float64   `yaml:"xy,omitempty"`
	XZ       float64   `yaml:"xz,omitempty"`
	YZ       float64   `yaml:"yz,omitempty"`
	Periodic []bool    `yaml:"periodic,omitempty"` // default: periodic along every axis
}

// TypeSpec names a particle type, its geometry and trial move sizes.
type TypeSpec struct {
	Name  string       `yaml:"name"`
	Shape GeometrySpec `yaml:"shape"`
	Move  *MoveSpec    `yaml:"move,omitempty"`
}

// GeometrySpec selects a shape variant. Vertices carry 2 components for
// planar shapes and 3 for polyhedra.
type GeometrySpec struct {
	Kind        string       `yaml:"kind"`
	Diameter    float64      `yaml:"diameter,omitempty"`
	Orientable  bool         `yaml:"orientable,omitempty"`
	Vertices    [][]float64  `yaml:"vertices,omitempty"`
	SweepRadius float64      `yaml:"sweep_radius,omitempty"`
	Members     []MemberSpec `yaml:"members,omitempty"`
}

// MemberSpec places a convex constituent of a union.
type MemberSpec struct {
	Shape       GeometrySpec `yaml:"shape"`
	Position    []float64    `yaml:"position"`
	Orientation []float64    `yaml:"orientation,omitempty"` // w, x, y, z
}

// MoveSpec sets per-type trial move sizes.
type MoveSpec struct {
	Translate float64 `yaml:"translate"`
	Rotate    float64 `yaml:"rotate"`
}

// LatticeSpec places Count particles of Type on the shared initial lattice.
type LatticeSpec struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
}

// ParticleSpec places one particle explicitly.
type ParticleSpec struct {
	Type        string    `yaml:"type"`
	Position    []float64 `yaml:"position"`
	Orientation []float64 `yaml:"orientation,omitempty"` // w, x, y, z
}

// IntegratorSpec configures the Mono Integrator. Zero values take the
// library defaults.
type IntegratorSpec struct {
	Mode              string   `yaml:"mode,omitempty"`
	NSelect           int      `yaml:"nselect,omitempty"`
	TranslateFraction *float64 `yaml:"translate_fraction,omitempty"`
	Distribution      string   `yaml:"distribution,omitempty"`
	Workers           int      `yaml:"workers,omitempty"`
	Epsilon           *float64 `yaml:"epsilon,omitempty"`
	Margin            float64  `yaml:"margin,omitempty"`
	Partitions        []int    `yaml:"partitions,omitempty"`
	GhostWidth        float64  `yaml:"ghost_width,omitempty"`
	RandomShift       *bool    `yaml:"random_shift,omitempty"`
	CheckConsistency  bool     `yaml:"check_consistency,omitempty"`
	BalancePeriod     uint64   `yaml:"balance_period,omitempty"` // domain mode only; 0 disables
}

// FieldsSpec lists external fields.
type FieldsSpec struct {
	Walls    []WallSpec    `yaml:"walls,omitempty"`
	Harmonic *HarmonicSpec `yaml:"harmonic,omitempty"`
}

// WallSpec configures one wall.
type WallSpec struct {
	Kind   string    `yaml:"kind"`
	Origin []float64 `yaml:"origin,omitempty"`
	Normal []float64 `yaml:"normal,omitempty"`
	Radius float64   `yaml:"radius,omitempty"`
	Inside bool      `yaml:"inside,omitempty"`
	K      float64   `yaml:"k,omitempty"`
}

// HarmonicSpec tethers every initial particle to its starting pose.
type HarmonicSpec struct {
	KTranslate float64 `yaml:"k_translate"`
	KRotate    float64 `yaml:"k_rotate,omitempty"`
}

// UpdatersSpec lists the updaters run between sweeps.
type UpdatersSpec struct {
	Cluster    *ClusterSpec    `yaml:"cluster,omitempty"`
	MuVT       *MuVTSpec       `yaml:"muvt,omitempty"`
	Shape      *ShapeMoveSpec  `yaml:"shape,omitempty"`
	Resize     *ResizeSpec     `yaml:"resize,omitempty"`
	Tune       *TuneSpec       `yaml:"tune,omitempty"`
	FreeVolume *FreeVolumeSpec `yaml:"free_volume,omitempty"`
}

// ClusterSpec configures geometric cluster moves.
type ClusterSpec struct {
	Period          uint64   `yaml:"period,omitempty"`
	Generators      []string `yaml:"generators,omitempty"`
	FlipProbability float64  `yaml:"flip_probability,omitempty"`
}

// MuVTSpec configures grand canonical exchange. Fugacities are keyed by
// type name; omitted types are held fixed.
type MuVTSpec struct {
	Period     uint64             `yaml:"period,omitempty"`
	Fugacities map[string]float64 `yaml:"fugacities"`
	Transfers  int                `yaml:"transfers,omitempty"`
}

// ShapeMoveSpec configures shape evolution.
type ShapeMoveSpec struct {
	Period        uint64   `yaml:"period,omitempty"`
	Move          string   `yaml:"move"` // vertex or scale
	Step          float64  `yaml:"step"`
	Attempts      int      `yaml:"attempts,omitempty"`
	Beta          float64  `yaml:"beta,omitempty"`
	NormalizeArea bool     `yaml:"normalize_area,omitempty"`
	Types         []string `yaml:"types,omitempty"`
}

// ResizeSpec ramps the box from its initial value to To.
type ResizeSpec struct {
	Period uint64   `yaml:"period,omitempty"`
	To     BoxSpec  `yaml:"to"`
	Start  uint64   `yaml:"start,omitempty"`
	Length uint64   `yaml:"length"`
	Power  float64  `yaml:"power,omitempty"` // 0 ramps linearly
	Types  []string `yaml:"types,omitempty"` // types rescaled with the box; empty means all
}

// TuneSpec configures move-size tuning.
type TuneSpec struct {
	Period       uint64  `yaml:"period,omitempty"`
	Target       float64 `yaml:"target"`
	MaxTranslate float64 `yaml:"max_translate,omitempty"`
	Until        uint64  `yaml:"until,omitempty"` // stop tuning at this step; 0 tunes throughout
}

// FreeVolumeSpec configures periodic free-volume estimates.
type FreeVolumeSpec struct {
	Period  uint64 `yaml:"period,omitempty"`
	Type    string `yaml:"type"`
	Samples int    `yaml:"samples"`
}

// LoadScenario reads a scenario with strict field checking.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &s, nil
}

var validShapeMoves = map[string]bool{"vertex": true, "scale": true}

// Validate checks the scenario for structural errors. Physical feasibility
// (overlaps, partition widths) is checked when the run is built.
func (s *Scenario) Validate() error {
	if s.Sweeps < 0 {
		return fmt.Errorf("sweeps must be non-negative, got %d", s.Sweeps)
	}
	if err := s.Box.validate("box"); err != nil {
		return err
	}
	if len(s.Types) == 0 {
		return fmt.Errorf("at least one particle type is required")
	}
	names := map[string]bool{}
	for i, t := range s.Types {
		if t.Name == "" {
			return fmt.Errorf("types[%d]: name is required", i)
		}
		if names[t.Name] {
			return fmt.Errorf("types[%d]: duplicate name %q", i, t.Name)
		}
		names[t.Name] = true
		if t.Shape.Kind == "" {
			return fmt.Errorf("types[%d]: shape kind is required", i)
		}
	}
	for i, l := range s.Lattice {
		if !names[l.Type] {
			return fmt.Errorf("lattice[%d]: unknown type %q", i, l.Type)
		}
		if l.Count < 0 {
			return fmt.Errorf("lattice[%d]: count must be non-negative, got %d", i, l.Count)
		}
	}
	for i, p := range s.Particles {
		if !names[p.Type] {
			return fmt.Errorf("particles[%d]: unknown type %q", i, p.Type)
		}
		if len(p.Position) != 3 {
			return fmt.Errorf("particles[%d]: position needs 3 components, got %d", i, len(p.Position))
		}
		if p.Orientation != nil && len(p.Orientation) != 4 {
			return fmt.Errorf("particles[%d]: orientation needs 4 components, got %d", i, len(p.Orientation))
		}
	}
	if !sim.IsValidMode(s.Integrator.Mode) {
		return fmt.Errorf("integrator: unknown mode %q; valid: serial, checkerboard, domain", s.Integrator.Mode)
	}
	if n := len(s.Integrator.Partitions); n != 0 && n != len(s.Box.L) {
		return fmt.Errorf("integrator: partitions needs %d entries, got %d", len(s.Box.L), n)
	}
	if s.Trace != "" && !trace.IsValidTraceLevel(s.Trace) {
		return fmt.Errorf("unknown trace level %q; valid: none, decisions, sweeps", s.Trace)
	}
	for i, w := range s.Fields.Walls {
		switch field.WallKind(w.Kind) {
		case field.WallPlane, field.WallSphere, field.WallCylinder:
		default:
			return fmt.Errorf("fields.walls[%d]: unknown kind %q; valid: plane, sphere, cylinder", i, w.Kind)
		}
	}
	return s.Updaters.validate(names)
}

func (u UpdatersSpec) validate(names map[string]bool) error {
	if c := u.Cluster; c != nil {
		for i, g := range c.Generators {
			switch cluster.Generator(g) {
			case cluster.GeneratorPivot, cluster.GeneratorReflection:
			default:
				return fmt.Errorf("updaters.cluster.generators[%d]: unknown generator %q; valid: pivot, reflection", i, g)
			}
		}
	}
	if m := u.MuVT; m != nil {
		for name := range m.Fugacities {
			if !names[name] {
				return fmt.Errorf("updaters.muvt.fugacities: unknown type %q", name)
			}
		}
	}
	if sm := u.Shape; sm != nil {
		if !validShapeMoves[sm.Move] {
			return fmt.Errorf("updaters.shape: unknown move %q; valid: vertex, scale", sm.Move)
		}
		if !(sm.Step > 0) || math.IsInf(sm.Step, 0) {
			return fmt.Errorf("updaters.shape: step must be positive, got %f", sm.Step)
		}
		for _, n := range sm.Types {
			if !names[n] {
				return fmt.Errorf("updaters.shape.types: unknown type %q", n)
			}
		}
	}
	if r := u.Resize; r != nil {
		if err := r.To.validate("updaters.resize.to"); err != nil {
			return err
		}
		if r.Power < 0 {
			return fmt.Errorf("updaters.resize: power must be non-negative, got %f", r.Power)
		}
		for _, n := range r.Types {
			if !names[n] {
				return fmt.Errorf("updaters.resize.types: unknown type %q", n)
			}
		}
	}
	if t := u.Tune; t != nil && !(t.Target > 0 && t.Target < 1) {
		return fmt.Errorf("updaters.tune: target must be in (0,1), got %f", t.Target)
	}
	if fv := u.FreeVolume; fv != nil {
		if !names[fv.Type] {
			return fmt.Errorf("updaters.free_volume: unknown type %q", fv.Type)
		}
		if fv.Samples < 1 {
			return fmt.Errorf("updaters.free_volume: samples must be positive, got %d", fv.Samples)
		}
	}
	return nil
}

func (b BoxSpec) validate(prefix string) error {
	if len(b.L) != 2 && len(b.L) != 3 {
		return fmt.Errorf("%s: l needs 2 or 3 entries, got %d", prefix, len(b.L))
	}
	if b.Periodic != nil && len(b.Periodic) != len(b.L) {
		return fmt.Errorf("%s: periodic needs %d entries, got %d", prefix, len(b.L), len(b.Periodic))
	}
	return nil
}

// typeIndex maps type names to shape-table indices.
func (s *Scenario) typeIndex() map[string]int {
	idx := make(map[string]int, len(s.Types))
	for i, t := range s.Types {
		idx[t.Name] = i
	}
	return idx
}

// buildShape converts a geometry description into a validated shape.
func buildShape(g GeometrySpec) (shape.Shape, error) {
	switch shape.Kind(g.Kind) {
	case shape.KindSphere:
		return shape.NewSphere(g.Diameter, g.Orientable)
	case shape.KindConvexPolygon:
		vs, err := vertices2(g.Vertices)
		if err != nil {
			return nil, err
		}
		return shape.NewConvexPolygon(vs)
	case shape.KindSpheropolygon:
		vs, err := vertices2(g.Vertices)
		if err != nil {
			return nil, err
		}
		return shape.NewSpheropolygon(vs, g.SweepRadius)
	case shape.KindConvexPolyhedron:
		vs, err := vertices3(g.Vertices)
		if err != nil {
			return nil, err
		}
		return shape.NewConvexPolyhedron(vs, g.SweepRadius)
	case shape.KindUnion:
		members := make([]shape.Member, len(g.Members))
		for i, m := range g.Members {
			s, err := buildShape(m.Shape)
			if err != nil {
				return nil, fmt.Errorf("member %d: %w", i, err)
			}
			pos, err := vec3(m.Position)
			if err != nil {
				return nil, fmt.Errorf("member %d: %w", i, err)
			}
			q, err := orientation(m.Orientation)
			if err != nil {
				return nil, fmt.Errorf("member %d: %w", i, err)
			}
			members[i] = shape.Member{Shape: s, Position: pos, Orientation: q}
		}
		return shape.NewUnion(members)
	}
	return nil, fmt.Errorf("%w: unknown shape kind %q", shape.ErrInvalidShape, g.Kind)
}
