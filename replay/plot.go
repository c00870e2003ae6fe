package replay

import (
	"fmt"
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// interiorGrid adapts a 2-D interior mask to plotter.GridXYZ
type interiorGrid struct {
	centersX []float64
	centersY []float64
	interior []bool
}

func (g interiorGrid) Dims() (c, r int) { return len(g.centersX), len(g.centersY) }
func (g interiorGrid) X(c int) float64  { return g.centersX[c] }
func (g interiorGrid) Y(r int) float64  { return g.centersY[r] }
func (g interiorGrid) Min() float64     { return 0 }
func (g interiorGrid) Max() float64     { return 1 }
func (g interiorGrid) Z(c, r int) float64 {
	// Row-major with X slowest
	if g.interior[c*len(g.centersY)+r] {
		return 1
	}
	return 0
}

// PlotGrid renders the place grid to path. The image format follows the file
// extension (png, svg, pdf, ...). In track-graph mode it draws the linearized
// edges with a vertical line per bin edge; in free-space mode it draws the
// interior mask.
func PlotGrid(fe *FittedEnvironment, path string) error {
	if err := fe.check(); err != nil {
		return err
	}
	p := plot.New()
	p.Title.Text = fe.config.name

	var width, height vg.Length
	var err error
	if fe.track != nil {
		width, height = 15*vg.Inch, 2*vg.Inch
		err = plotTrackGrid(p, fe)
	} else {
		width, height = 6*vg.Inch, 7*vg.Inch
		err = plotFreeGrid(p, fe)
	}
	if err != nil {
		return err
	}
	if err := p.Save(width, height, path); err != nil {
		return errors.Wrapf(err, "can't save grid plot to %s", path)
	}
	return nil
}

func plotTrackGrid(p *plot.Plot, fe *FittedEnvironment) error {
	p.X.Label.Text = "Linear position"
	p.Y.Min = 0
	p.Y.Max = 0.1

	for i := range fe.track.edgeStarts {
		start := fe.track.edgeStarts[i]
		end := start + fe.track.edgeLengths[i]
		segment, err := plotter.NewLine(plotter.XYs{{X: start, Y: 0.05}, {X: end, Y: 0.05}})
		if err != nil {
			return err
		}
		segment.Width = vg.Points(3)
		segment.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		p.Add(segment)

		nodes, err := plotter.NewScatter(plotter.XYs{{X: start, Y: 0.05}, {X: end, Y: 0.05}})
		if err != nil {
			return err
		}
		p.Add(nodes)
	}
	for _, edge := range fe.geometry.edges[0] {
		line, err := plotter.NewLine(plotter.XYs{{X: edge, Y: 0}, {X: edge, Y: 0.1}})
		if err != nil {
			return err
		}
		line.Width = vg.Points(0.5)
		line.Color = color.Black
		p.Add(line)
	}
	return nil
}

func plotFreeGrid(p *plot.Plot, fe *FittedEnvironment) error {
	switch fe.geometry.NumDims() {
	case 1:
		pts := make(plotter.XYs, len(fe.interior))
		centers := midpoints(fe.geometry.edges[0])
		for i, isInterior := range fe.interior {
			pts[i].X = centers[i]
			if isInterior {
				pts[i].Y = 1
			}
		}
		steps, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		steps.StepStyle = plotter.MidStep
		p.Add(steps)
		p.Y.Label.Text = "Interior"
	case 2:
		grid := interiorGrid{
			centersX: midpoints(fe.geometry.edges[0]),
			centersY: midpoints(fe.geometry.edges[1]),
			interior: fe.interior,
		}
		p.Add(plotter.NewHeatMap(grid, palette.Heat(2, 1)))
		p.Add(plotter.NewGrid())
	default:
		return errors.Wrap(ErrInvalidInput, fmt.Sprintf("can't plot a %d-dimensional grid", fe.geometry.NumDims()))
	}
	p.X.Label.Text = "x"
	return nil
}
