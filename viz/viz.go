// Package viz renders rollout tables and planning decisions to PNG files
// for offline inspection.
package viz

import (
	"fmt"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/viam-labs/laser-wanderer/wander"
)

var (
	rolloutColor = color.RGBA{R: 0x6b, G: 0x8e, B: 0xc7, A: 0xff}
	winnerColor  = color.RGBA{R: 0xd6, G: 0x3a, B: 0x2f, A: 0xff}
	scanColor    = color.RGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}
)

// RenderRollouts draws every candidate rollout in the body frame and saves
// the figure as a PNG.
func RenderRollouts(table *wander.RolloutTable, path string) error {
	if table == nil {
		return errors.New("rollout table is required")
	}

	p := plot.New()
	p.Title.Text = "steering rollouts"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	for i := 0; i < table.NumCandidates(); i++ {
		line, err := rolloutLine(table, i)
		if err != nil {
			return err
		}
		line.Color = rolloutColor
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%.3f rad", table.Candidate(i)), line)
	}
	p.Legend.Top = true

	return save(p, path)
}

// RenderDecision draws the scan returns and every rollout, with the winning
// candidate highlighted, and saves the figure as a PNG.
func RenderDecision(table *wander.RolloutTable, scan *wander.Scan, decision wander.Decision, path string) error {
	if table == nil {
		return errors.New("rollout table is required")
	}
	if decision.Candidate < 0 || decision.Candidate >= table.NumCandidates() {
		return errors.Errorf("decision names candidate %d of %d", decision.Candidate, table.NumCandidates())
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("decision: %.3f rad over %d sweeps", decision.Steering, decision.Sweeps)
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	if scan != nil {
		points, err := scanScatter(scan)
		if err != nil {
			return err
		}
		if points != nil {
			p.Add(points)
			p.Legend.Add("scan", points)
		}
	}

	for i := 0; i < table.NumCandidates(); i++ {
		if i == decision.Candidate {
			continue
		}
		line, err := rolloutLine(table, i)
		if err != nil {
			return err
		}
		line.Color = rolloutColor
		p.Add(line)
	}
	winner, err := rolloutLine(table, decision.Candidate)
	if err != nil {
		return err
	}
	winner.Color = winnerColor
	winner.Width = vg.Points(2)
	p.Add(winner)
	p.Legend.Add(fmt.Sprintf("best %.3f rad", decision.Steering), winner)
	p.Legend.Top = true

	return save(p, path)
}

func rolloutLine(table *wander.RolloutTable, i int) (*plotter.Line, error) {
	rollout := table.Rollout(i)
	pts := make(plotter.XYs, 0, len(rollout)+1)
	pts = append(pts, plotter.XY{})
	for _, pose := range rollout {
		pts = append(pts, plotter.XY{X: pose.X, Y: pose.Y})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to plot rollout %d", i)
	}
	line.Width = vg.Points(1)
	return line, nil
}

func scanScatter(scan *wander.Scan) (*plotter.Scatter, error) {
	pts := make(plotter.XYs, 0, len(scan.Ranges))
	for i := range scan.Ranges {
		if !scan.ValidRange(i) {
			continue
		}
		bearing := scan.Bearing(i)
		r := scan.Ranges[i]
		pts = append(pts, plotter.XY{X: r * math.Cos(bearing), Y: r * math.Sin(bearing)})
	}
	if len(pts) == 0 {
		return nil, nil
	}
	points, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, errors.Wrap(err, "unable to plot scan")
	}
	points.GlyphStyle.Color = scanColor
	points.GlyphStyle.Radius = vg.Points(1)
	return points, nil
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "unable to save plot %q", path)
	}
	return nil
}
