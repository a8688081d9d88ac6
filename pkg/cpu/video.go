package cpu

import (
	"image"
	"image/png"
	"os"

	"neptune/pkg/mem"
)

// FramebufferRGBA snapshots VRAM as raw RGBA8888 bytes
// (VramWidth × VramHeight × 4). VRAM already stores RGBA32 pixels, so
// this is a straight copy renderers can poll between steps.
func (c *CPU) FramebufferRGBA() []byte {
	pix := make([]byte, mem.VramSize)
	c.bus.Vram().Snapshot(pix)
	return pix
}

// FramebufferImage returns the current framebuffer as an *image.RGBA.
func (c *CPU) FramebufferImage() *image.RGBA {
	return &image.RGBA{
		Pix:    c.FramebufferRGBA(),
		Stride: mem.VramWidth * mem.VramBytesPerPixel,
		Rect:   image.Rect(0, 0, mem.VramWidth, mem.VramHeight),
	}
}

// SaveScreenshot encodes the framebuffer as a PNG and writes it to
// filename.
func (c *CPU) SaveScreenshot(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, c.FramebufferImage())
}
