package report

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/smallbiznis/equiplytics/internal/dataset/analytics"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// ChartRenderer draws the category distribution as an image.
type ChartRenderer interface {
	RenderBarChart(dist *analytics.Distribution) ([]byte, error)
}

// BarChart renders a PNG bar chart with categories in lexical order.
type BarChart struct {
	Width  int
	Height int
}

func NewBarChart() *BarChart {
	return &BarChart{Width: 900, Height: 600}
}

var (
	fontsOnce sync.Once
	fontsErr  error
	regular   *truetype.Font
	bold      *truetype.Font
)

func loadFonts() error {
	fontsOnce.Do(func() {
		regular, fontsErr = truetype.Parse(goregular.TTF)
		if fontsErr != nil {
			return
		}
		bold, fontsErr = truetype.Parse(gobold.TTF)
	})
	return fontsErr
}

func face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: size, Hinting: font.HintingNone})
}

const rotateLabelsAbove = 5

func (c *BarChart) RenderBarChart(dist *analytics.Distribution) ([]byte, error) {
	if dist.Len() == 0 {
		return nil, ErrEmptyDistribution
	}
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}

	w, h := float64(c.Width), float64(c.Height)
	categories := dist.Sorted()
	rotate := len(categories) > rotateLabelsAbove

	left, right, top, bottom := 80.0, 30.0, 70.0, 80.0
	if rotate {
		bottom = 140
	}
	plotW := w - left - right
	plotH := h - top - bottom
	if plotW <= 0 || plotH <= 0 {
		return nil, fmt.Errorf("chart area %dx%d is too small", c.Width, c.Height)
	}

	maxCount := 0
	for _, category := range categories {
		maxCount = max(maxCount, dist.Count(category))
	}
	step := niceStep(maxCount)
	yMax := float64(step * int(math.Ceil(float64(maxCount)/float64(step))))
	if yMax == 0 {
		yMax = 1
	}
	yOf := func(v float64) float64 { return top + plotH - v/yMax*plotH }

	dc := gg.NewContext(c.Width, c.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// grid and y ticks
	dc.SetFontFace(face(regular, 12))
	dc.SetLineWidth(1)
	for v := 0; float64(v) <= yMax; v += step {
		y := yOf(float64(v))
		dc.SetRGBA(0, 0, 0, 0.3)
		dc.SetDash(4, 4)
		dc.DrawLine(left, y, left+plotW, y)
		dc.Stroke()
		dc.SetDash()
		dc.SetRGB(0.2, 0.2, 0.2)
		dc.DrawStringAnchored(strconv.Itoa(v), left-8, y, 1, 0.5)
	}

	// bars
	slot := plotW / float64(len(categories))
	barW := slot * 0.7
	for i, category := range categories {
		count := float64(dist.Count(category))
		x := left + slot*float64(i) + (slot-barW)/2
		y := yOf(count)

		dc.DrawRectangle(x, y, barW, top+plotH-y)
		dc.SetRGB(0.27, 0.51, 0.71)
		dc.FillPreserve()
		dc.SetRGB(0, 0, 0)
		dc.SetLineWidth(1.2)
		dc.Stroke()

		dc.SetFontFace(face(bold, 12))
		dc.DrawStringAnchored(strconv.Itoa(int(count)), x+barW/2, y-6, 0.5, 0)

		dc.SetFontFace(face(regular, 12))
		cx := x + barW/2
		ly := top + plotH + 10
		if rotate {
			dc.Push()
			dc.RotateAbout(gg.Radians(-45), cx, ly)
			dc.DrawStringAnchored(category, cx, ly, 1, 1)
			dc.Pop()
		} else {
			dc.DrawStringAnchored(category, cx, ly, 0.5, 1)
		}
	}

	// axes
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1.5)
	dc.DrawLine(left, top, left, top+plotH)
	dc.DrawLine(left, top+plotH, left+plotW, top+plotH)
	dc.Stroke()

	dc.SetFontFace(face(bold, 18))
	dc.DrawStringAnchored("Equipment Type Distribution", w/2, top/2, 0.5, 0.5)

	dc.SetFontFace(face(bold, 14))
	dc.DrawStringAnchored("Equipment Type", left+plotW/2, h-18, 0.5, 0)
	dc.Push()
	dc.RotateAbout(gg.Radians(-90), 22, top+plotH/2)
	dc.DrawStringAnchored("Count", 22, top+plotH/2, 0.5, 0.5)
	dc.Pop()

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// niceStep picks an integer tick spacing giving at most ~6 gridlines.
func niceStep(maxCount int) int {
	if maxCount <= 6 {
		return 1
	}
	raw := float64(maxCount) / 5
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	for _, m := range []float64{1, 2, 5, 10} {
		if m*mag >= raw {
			return int(m * mag)
		}
	}
	return int(10 * mag)
}
