package gpu

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/navkagleb/benzin-sub002/engine/core"
)

const (
	// Rows of a buffer-to-texture copy start on this boundary.
	TextureRowPitchAlignment = 256
	// The first texel of a buffer-to-texture copy starts on this boundary.
	TexturePlacementAlignment = 512
)

// TextureRowPitch is the padded size of one row of a staged texture.
func TextureRowPitch(width uint32, format Format) uint32 {
	return AlignUp(width*format.BytesPerPixel(), TextureRowPitchAlignment)
}

// TextureUploadSize is the number of staging bytes a texture needs.
func TextureUploadSize(width, height uint32, format Format) uint64 {
	return uint64(TextureRowPitch(width, format)) * uint64(height)
}

// StageTexture copies tightly packed pixels into the arena row by row,
// padding every row to the hardware row pitch.
func (a *UploadArena) StageTexture(pixels []byte, width, height uint32, format Format) TextureFootprint {
	bpp := format.BytesPerPixel()
	core.Assert(bpp != 0, core.ErrTextureDataSize, "format %d has no texel size", format)
	tight := uint64(width) * uint64(bpp)
	if uint64(len(pixels)) != tight*uint64(height) {
		core.Fatal(core.ErrTextureDataSize, "%d bytes for a %dx%d texture of %d bytes per pixel",
			len(pixels), width, height, bpp)
	}

	pitch := TextureRowPitch(width, format)
	size := uint64(pitch) * uint64(height)
	offset := a.Allocate(size, TexturePlacementAlignment)
	dst := a.Bytes(offset, size)
	for y := uint64(0); y < uint64(height); y++ {
		copy(dst[y*uint64(pitch):], pixels[y*tight:(y+1)*tight])
	}
	return TextureFootprint{
		Offset:   offset,
		Width:    width,
		Height:   height,
		Format:   format,
		RowPitch: pitch,
	}
}

// ImageToRGBA returns img as tightly packed 8-bit RGBA pixels with its
// origin at (0, 0).
func ImageToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
