// Package export renders a canvas snapshot into a PDF, for saving or
// printing a board without a connected client.
package export

import (
	"io"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"LiveBoard/internal/state"
)

// A4 landscape, with a margin on every side.
const (
	pageWidth  = 297.0
	pageHeight = 210.0
	margin     = 10.0
)

// WritePDF draws the strokes onto a single landscape page, scaled to
// fit while keeping their aspect ratio. Strokes arrive in creation
// order, so eraser strokes paint white over whatever came before,
// just as they do on the canvas.
func WritePDF(w io.Writer, strokes []*state.Stroke) error {
	p := gofpdf.New("L", "mm", "A4", "")
	p.AddPage()

	offX, offY, scale := fitToPage(strokes)
	for _, st := range strokes {
		if len(st.Points) == 0 {
			continue
		}
		r, g, b := strokeColor(st)
		p.SetDrawColor(r, g, b)
		p.SetFillColor(r, g, b)
		p.SetLineWidth(lineWidth(st.Width, scale))
		p.SetLineCapStyle("round")

		if len(st.Points) == 1 {
			// A tap leaves a dot, not nothing.
			pt := st.Points[0]
			p.Circle(margin+(pt.X-offX)*scale, margin+(pt.Y-offY)*scale, lineWidth(st.Width, scale)/2, "F")
			continue
		}
		for i := 1; i < len(st.Points); i++ {
			p.Line(
				margin+(st.Points[i-1].X-offX)*scale, margin+(st.Points[i-1].Y-offY)*scale,
				margin+(st.Points[i].X-offX)*scale, margin+(st.Points[i].Y-offY)*scale,
			)
		}
	}
	return p.Output(w)
}

// fitToPage maps the bounding box of all points into the printable
// area. An empty canvas gets an identity-ish mapping for the blank
// page.
func fitToPage(strokes []*state.Stroke) (offX, offY, scale float64) {
	minX, minY := 0.0, 0.0
	maxX, maxY := 0.0, 0.0
	first := true
	for _, st := range strokes {
		for _, pt := range st.Points {
			if first {
				minX, maxX = pt.X, pt.X
				minY, maxY = pt.Y, pt.Y
				first = false
				continue
			}
			minX = min(minX, pt.X)
			maxX = max(maxX, pt.X)
			minY = min(minY, pt.Y)
			maxY = max(maxY, pt.Y)
		}
	}
	if first {
		return 0, 0, 1
	}
	boxW := max(maxX-minX, 1)
	boxH := max(maxY-minY, 1)
	scale = min((pageWidth-2*margin)/boxW, (pageHeight-2*margin)/boxH)
	// Do not blow a few pixels up to a full page.
	scale = min(scale, 1)
	return minX, minY, scale
}

func lineWidth(width, scale float64) float64 {
	return max(width*scale, 0.2)
}

// strokeColor resolves the pen color; eraser strokes paint in page
// white. Unparseable colors fall back to black.
func strokeColor(st *state.Stroke) (r, g, b int) {
	if st.Tool == state.ToolEraser {
		return 255, 255, 255
	}
	return parseHexColor(st.Color)
}

func parseHexColor(s string) (r, g, b int) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
