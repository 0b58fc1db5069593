package frame

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"focusguard-backend/internal/proximity"
)

var (
	colorPerson    = color.RGBA{0, 200, 0, 255}
	colorPhoneNear = color.RGBA{230, 0, 0, 255}
	colorPhone     = color.RGBA{240, 200, 0, 255}
	colorText      = color.RGBA{255, 255, 255, 255}
	colorAlert     = color.RGBA{255, 40, 40, 255}
)

// Overlay is the status text drawn in the top-left corner.
type Overlay struct {
	FPS           int
	PersonPresent bool
	PhoneSeconds  float64
	Distracted    bool
}

// Annotate draws the analysis result over the frame and returns it as a jpeg data URL.
func Annotate(f *Frame, res proximity.Result, ov Overlay) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return "", fmt.Errorf("failed to decode frame: %w", err)
	}
	img := image.NewRGBA(src.Bounds())
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)

	for _, p := range res.Persons {
		drawBox(img, p, colorPerson)
		drawLabel(img, int(p.X), int(p.Y)-4, fmt.Sprintf("person %.2f", p.Confidence), colorPerson)
	}
	for i, p := range res.Phones {
		c := colorPhone
		if i < len(res.Near) && res.Near[i] {
			c = colorPhoneNear
		}
		drawBox(img, p, c)
		drawLabel(img, int(p.X), int(p.Y)-4, fmt.Sprintf("phone %.2f", p.Confidence), c)
	}

	presence := "User Absent"
	if ov.PersonPresent {
		presence = "User Present"
	}
	drawLabel(img, 10, 20, fmt.Sprintf("FPS: %d", ov.FPS), colorText)
	drawLabel(img, 10, 36, presence, colorText)
	if ov.PhoneSeconds > 0 {
		drawLabel(img, 10, 52, fmt.Sprintf("Phone: %.1fs", ov.PhoneSeconds), colorPhoneNear)
	}
	if ov.Distracted {
		drawLabel(img, 10, 68, "DISTRACTION DETECTED!", colorAlert)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return "", fmt.Errorf("failed to encode annotated frame: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func drawBox(img *image.RGBA, b proximity.Box, c color.Color) {
	r := image.Rect(int(b.X), int(b.Y), int(b.X+b.W), int(b.Y+b.H)).Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	const thickness = 2
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	u := image.NewUniform(c)
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r), u, image.Point{}, draw.Src)
	}
}

func drawLabel(img *image.RGBA, x, y int, text string, c color.Color) {
	if y < 13 {
		y = 13
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
