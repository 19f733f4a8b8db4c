package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hpmc-sim/hpmc-sim/sim/freevolume"
	"github.com/hpmc-sim/hpmc-sim/sim/trace"
)

// PrintSummary writes the end-of-run statistics of r to w.
func PrintSummary(w io.Writer, r *Run, elapsed time.Duration) {
	c := r.Integrator.Counters()
	fmt.Fprintln(w, "=== HPMC Summary ===")
	fmt.Fprintf(w, "Sweeps               : %s\n", humanize.Comma(int64(r.Integrator.Step())))
	fmt.Fprintf(w, "Particles            : %s\n", humanize.Comma(int64(r.System.Len())))
	fmt.Fprintf(w, "Translate Acceptance : %.4f (%s / %s)\n", c.TranslateAcceptance(),
		humanize.Comma(c.TranslateAccepted), humanize.Comma(c.TranslateAttempted))
	fmt.Fprintf(w, "Rotate Acceptance    : %.4f (%s / %s)\n", c.RotateAcceptance(),
		humanize.Comma(c.RotateAccepted), humanize.Comma(c.RotateAttempted))
	fmt.Fprintf(w, "Overlap Checks       : %s\n", humanize.Comma(c.OverlapChecks))
	if c.NearTolerance > 0 {
		fmt.Fprintf(w, "Near-Tolerance Ties  : %s\n", humanize.Comma(c.NearTolerance))
	}
	for t := 0; t < r.System.Shapes.Len(); t++ {
		m := r.Integrator.MoveSize(t)
		fmt.Fprintf(w, "Move Size [%s] : translate=%.4f rotate=%.4f\n", r.System.Shapes.Name(t), m.Translate, m.Rotate)
	}

	if r.Cluster != nil {
		tot := r.Cluster.Total()
		fmt.Fprintf(w, "Cluster Moves        : %s (avg cluster size %.2f, %s rejected)\n",
			humanize.Comma(tot.Moves), tot.AverageClusterSize(), humanize.Comma(tot.Rejections))
	}
	if r.MuVT != nil {
		for t := 0; t < r.System.Shapes.Len(); t++ {
			mc := r.MuVT.Counters(t)
			if mc.InsertAttempted+mc.RemoveAttempted == 0 {
				continue
			}
			fmt.Fprintf(w, "Exchange [%s]         : %s/%s inserted, %s/%s removed\n", r.System.Shapes.Name(t),
				humanize.Comma(mc.InsertAccepted), humanize.Comma(mc.InsertAttempted),
				humanize.Comma(mc.RemoveAccepted), humanize.Comma(mc.RemoveAttempted))
		}
	}
	if r.Shape != nil {
		for t := 0; t < r.System.Shapes.Len(); t++ {
			sc := r.Shape.Counters(t)
			if sc.Attempted == 0 {
				continue
			}
			fmt.Fprintf(w, "Shape Moves [%s]      : %s/%s accepted, %s overlapping, %s invalid, %s past ghost margin\n", r.System.Shapes.Name(t),
				humanize.Comma(sc.Accepted), humanize.Comma(sc.Attempted), humanize.Comma(sc.Overlap), humanize.Comma(sc.Invalid), humanize.Comma(sc.Margin))
		}
	}
	if r.Resize != nil {
		fmt.Fprintf(w, "Box Resizes          : %s applied, %s refused\n", humanize.Comma(r.Resize.Applied()), humanize.Comma(r.Resize.Refused()))
	}
	if n := len(r.FreeVolume); n > 0 {
		last := r.FreeVolume[n-1]
		fmt.Fprintf(w, "Free Volume          : %.4f +/- %.4f (%d estimates)\n", last.Fraction, last.StdErr, n)
	}
	if r.Trace != nil && r.Trace.Config.Level != trace.TraceLevelNone {
		printTraceSummary(w, trace.Summarize(r.Trace))
	}
	fmt.Fprintf(w, "Wall Time            : %s\n", elapsed.Round(time.Millisecond))
}

func printTraceSummary(w io.Writer, s *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Trace Summary ===")
	if s.Sweeps > 0 {
		fmt.Fprintf(w, "Traced Sweeps        : %s (acceptance %.4f, per sweep %.4f +/- %.4f)\n",
			humanize.Comma(int64(s.Sweeps)), s.MoveAcceptance, s.SweepAcceptance.Mean, s.SweepAcceptance.StdDev)
	}
	if s.ClusterMoves > 0 {
		fmt.Fprintf(w, "Largest Cluster      : mean %.1f, median %.0f, p95 %.0f, max %.0f\n",
			s.LargestCluster.Mean, s.LargestCluster.P50, s.LargestCluster.P95, s.LargestCluster.Max)
	}
	for _, row := range []struct {
		name string
		t    trace.Tally
	}{
		{"Insertions", s.Insertions},
		{"Deletions", s.Deletions},
		{"Shape Moves", s.ShapeMoves},
		{"Resizes", s.Resizes},
	} {
		if row.t.Attempted > 0 {
			fmt.Fprintf(w, "%-21s: %s/%s (%.4f)\n", row.name, humanize.Comma(int64(row.t.Accepted)), humanize.Comma(int64(row.t.Attempted)), row.t.Ratio())
		}
	}
}

// PrintFreeVolume writes one free-volume estimate to w.
func PrintFreeVolume(w io.Writer, typeName string, res freevolume.Result) {
	fmt.Fprintln(w, "=== Free Volume ===")
	fmt.Fprintf(w, "Test Particle        : %s\n", typeName)
	fmt.Fprintf(w, "Samples              : %s (%s free)\n", humanize.Comma(int64(res.Samples)), humanize.Comma(int64(res.Free)))
	fmt.Fprintf(w, "Free Fraction        : %.6f +/- %.6f\n", res.Fraction, res.StdErr)
	fmt.Fprintf(w, "Free Volume          : %.4f\n", res.Volume)
	fmt.Fprintf(w, "Excess Chem. Pot.    : %.4f kT\n", freevolume.ExcessChemicalPotential(res.Fraction))
}
