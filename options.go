package htmlshot

// ImageFormat selects the screenshot encoding.
type ImageFormat string

// Supported screenshot formats.
const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatWebP ImageFormat = "webp"
)

// hasQuality reports whether the format accepts a quality parameter.
func (f ImageFormat) hasQuality() bool {
	return f == FormatJPEG || f == FormatWebP
}

// DefaultQuality is applied to JPEG and WebP captures when the caller does
// not choose one.
const DefaultQuality = 90

// Viewport describes device metrics applied to a tab before capture.
type Viewport struct {
	// Width and Height are the viewport dimensions in CSS pixels.
	Width  int
	Height int

	// DeviceScaleFactor is the DPR. Values above 1.0 produce denser output
	// pixels for the same CSS dimensions. Zero means 1.0.
	DeviceScaleFactor float64

	// IsMobile emulates a mobile device.
	IsMobile bool

	// HasTouch enables touch event emulation.
	HasTouch bool

	// IsLandscape selects landscape screen orientation.
	IsLandscape bool
}

// NewViewport returns a viewport with the given dimensions and default
// density.
func NewViewport(width, height int) Viewport {
	return Viewport{Width: width, Height: height, DeviceScaleFactor: 1.0}
}

// WithScale returns a copy with the given device scale factor.
func (v Viewport) WithScale(factor float64) Viewport {
	v.DeviceScaleFactor = factor
	return v
}

// WithMobile returns a copy with mobile emulation set.
func (v Viewport) WithMobile(mobile bool) Viewport {
	v.IsMobile = mobile
	return v
}

// WithTouch returns a copy with touch emulation set.
func (v Viewport) WithTouch(touch bool) Viewport {
	v.HasTouch = touch
	return v
}

// WithLandscape returns a copy with landscape orientation set.
func (v Viewport) WithLandscape(landscape bool) Viewport {
	v.IsLandscape = landscape
	return v
}

// scale returns the effective device scale factor.
func (v Viewport) scale() float64 {
	if v.DeviceScaleFactor == 0 {
		return 1.0
	}
	return v.DeviceScaleFactor
}

// ClipRegion is an explicit capture rectangle in CSS pixels.
type ClipRegion struct {
	X      float64
	Y      float64
	Width  float64
	Height float64

	// Scale of the clip itself. Zero means 1.0; output density is normally
	// driven through Viewport.DeviceScaleFactor instead.
	Scale float64
}

// NewClipRegion returns a clip rectangle at scale 1.0.
func NewClipRegion(x, y, width, height float64) ClipRegion {
	return ClipRegion{X: x, Y: y, Width: width, Height: height, Scale: 1.0}
}

// WithScale returns a copy with the given clip scale.
func (c ClipRegion) WithScale(scale float64) ClipRegion {
	c.Scale = scale
	return c
}

// scale returns the effective clip scale.
func (c ClipRegion) scale() float64 {
	if c.Scale == 0 {
		return 1.0
	}
	return c.Scale
}

// CaptureOptions configures a screenshot. The zero value is a JPEG capture
// at default quality with no viewport override. Options are consumed
// per-call and never mutated by the library.
type CaptureOptions struct {
	// Format of the encoded image. Empty means JPEG.
	Format ImageFormat

	// Quality for JPEG and WebP, 1-100. Zero means DefaultQuality. Ignored
	// for PNG.
	Quality int

	// Viewport, when non-nil, is applied to the tab before capture.
	Viewport *Viewport

	// FullPage captures beyond the viewport bounds.
	FullPage bool

	// OmitBackground renders a transparent background. PNG only.
	OmitBackground bool

	// Clip, when non-nil, overrides the capture rectangle for viewport
	// captures. Element captures always clip to the element's border box.
	Clip *ClipRegion
}

// NewCaptureOptions returns the default capture configuration.
func NewCaptureOptions() CaptureOptions {
	return CaptureOptions{Format: FormatJPEG}
}

// WithFormat returns a copy with the given image format.
func (o CaptureOptions) WithFormat(format ImageFormat) CaptureOptions {
	o.Format = format
	return o
}

// WithQuality returns a copy with the given quality, clamped to 100.
func (o CaptureOptions) WithQuality(quality int) CaptureOptions {
	if quality > 100 {
		quality = 100
	}
	o.Quality = quality
	return o
}

// WithViewport returns a copy that applies the given viewport before
// capture.
func (o CaptureOptions) WithViewport(v Viewport) CaptureOptions {
	o.Viewport = &v
	return o
}

// WithFullPage returns a copy with full-page capture set.
func (o CaptureOptions) WithFullPage(fullPage bool) CaptureOptions {
	o.FullPage = fullPage
	return o
}

// WithOmitBackground returns a copy with background omission set.
func (o CaptureOptions) WithOmitBackground(omit bool) CaptureOptions {
	o.OmitBackground = omit
	return o
}

// WithClip returns a copy with an explicit capture rectangle.
func (o CaptureOptions) WithClip(clip ClipRegion) CaptureOptions {
	o.Clip = &clip
	return o
}

// format returns the effective image format.
func (o CaptureOptions) format() ImageFormat {
	if o.Format == "" {
		return FormatJPEG
	}
	return o.Format
}

// quality returns the effective encoding quality.
func (o CaptureOptions) quality() int {
	if o.Quality == 0 {
		return DefaultQuality
	}
	return o.Quality
}

// RawPNG is a preset for lossless PNG captures.
func RawPNG() CaptureOptions {
	return NewCaptureOptions().WithFormat(FormatPNG)
}

// HighQualityJPEG is a preset for quality-95 JPEG captures.
func HighQualityJPEG() CaptureOptions {
	return NewCaptureOptions().WithQuality(95)
}

// HiDPI is a preset capturing at 2x device scale.
func HiDPI() CaptureOptions {
	return NewCaptureOptions().WithViewport(NewViewport(800, 600).WithScale(2.0))
}

// UltraHiDPI is a preset capturing at 3x device scale.
func UltraHiDPI() CaptureOptions {
	return NewCaptureOptions().WithViewport(NewViewport(800, 600).WithScale(3.0))
}
