package captcha

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageGenerator genera un código alfanumérico y lo dibuja en un PNG.
// Los glifos salen de basicfont (7x13) escalados a FontSize px de alto.
type ImageGenerator struct {
	Charset    string
	Length     int
	Width      int
	Height     int
	NoiseLines int
	FontSize   int
	Expiry     time.Duration
	Now        func() time.Time

	src source
}

// ImageOptions parámetros de NewImageGenerator. Los ceros toman default.
type ImageOptions struct {
	Charset    string
	Length     int
	Width      int
	Height     int
	NoiseLines int
	FontSize   int
	Expiry     time.Duration
}

func NewImageGenerator(o ImageOptions, rnd *rand.Rand) *ImageGenerator {
	g := &ImageGenerator{
		Charset:    o.Charset,
		Length:     o.Length,
		Width:      o.Width,
		Height:     o.Height,
		NoiseLines: o.NoiseLines,
		FontSize:   o.FontSize,
		Expiry:     o.Expiry,
		Now:        time.Now,
		src:        source{r: rnd},
	}
	if g.Charset == "" {
		g.Charset = DefaultCharset
	}
	if g.Length <= 0 {
		g.Length = 4
	}
	if g.Width <= 0 {
		g.Width = 120
	}
	if g.Height <= 0 {
		g.Height = 40
	}
	if g.FontSize <= 0 {
		g.FontSize = g.Height * 2 / 3
	}
	if g.Expiry <= 0 {
		g.Expiry = 2 * time.Minute
	}
	return g
}

func (g *ImageGenerator) Generate() (*Challenge, error) {
	code := randomCode(&g.src, g.Charset, g.Length)
	payload, err := g.Render(code)
	if err != nil {
		return nil, err
	}
	return &Challenge{
		Code:     code,
		ExpireAt: g.Now().Add(g.Expiry),
		Payload:  payload,
	}, nil
}

// Render dibuja code y devuelve el PNG.
func (g *ImageGenerator) Render(code string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	bg := color.RGBA{R: uint8(225 + g.src.IntN(31)), G: uint8(225 + g.src.IntN(31)), B: uint8(225 + g.src.IntN(31)), A: 255}
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	gh := g.FontSize
	if gh > g.Height-2 {
		gh = g.Height - 2
	}
	gw := gh * face.Advance / face.Height
	slot := g.Width / max(len(code), 1)
	if gw > slot {
		gw = slot
	}

	for i, ch := range code {
		glyph := image.NewRGBA(image.Rect(0, 0, face.Advance, face.Height))
		d := &font.Drawer{
			Dst:  glyph,
			Src:  image.NewUniform(g.inkColor()),
			Face: face,
			Dot:  fixed.P(0, face.Ascent),
		}
		d.DrawString(string(ch))

		x := i*slot + (slot-gw)/2
		free := g.Height - gh
		y := free / 2
		if free > 1 {
			y = g.src.IntN(free)
		}
		dst := image.Rect(x, y, x+gw, y+gh)
		draw.BiLinear.Scale(img, dst, glyph, glyph.Bounds(), draw.Over, nil)
	}

	for i := 0; i < g.NoiseLines; i++ {
		line(img,
			g.src.IntN(g.Width), g.src.IntN(g.Height),
			g.src.IntN(g.Width), g.src.IntN(g.Height),
			g.inkColor())
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("captcha: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *ImageGenerator) inkColor() color.RGBA {
	return color.RGBA{R: uint8(g.src.IntN(140)), G: uint8(g.src.IntN(140)), B: uint8(g.src.IntN(140)), A: 255}
}

// line dibuja un segmento (Bresenham).
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
