package htmlshot

import "testing"

func TestCaptureOptionsDefaults(t *testing.T) {
	t.Parallel()

	opts := NewCaptureOptions()
	if got := opts.format(); got != FormatJPEG {
		t.Errorf("format = %q, want jpeg", got)
	}
	if got := opts.quality(); got != DefaultQuality {
		t.Errorf("quality = %d, want %d", got, DefaultQuality)
	}
	if opts.Viewport != nil || opts.Clip != nil || opts.FullPage || opts.OmitBackground {
		t.Errorf("defaults carry extras: %+v", opts)
	}
}

func TestCaptureOptionsZeroValue(t *testing.T) {
	t.Parallel()

	var opts CaptureOptions
	if got := opts.format(); got != FormatJPEG {
		t.Errorf("zero-value format = %q, want jpeg", got)
	}
	if got := opts.quality(); got != DefaultQuality {
		t.Errorf("zero-value quality = %d, want %d", got, DefaultQuality)
	}
}

func TestWithQualityClamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   int
		want int
	}{
		{"in range", 75, 75},
		{"at ceiling", 100, 100},
		{"above ceiling", 150, 100},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewCaptureOptions().WithQuality(tt.in).Quality; got != tt.want {
				t.Errorf("WithQuality(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuildersDoNotMutateReceiver(t *testing.T) {
	t.Parallel()

	base := NewCaptureOptions()
	derived := base.WithFormat(FormatPNG).WithFullPage(true).WithOmitBackground(true)
	if base.Format != FormatJPEG || base.FullPage || base.OmitBackground {
		t.Errorf("base mutated by builders: %+v", base)
	}
	if derived.Format != FormatPNG || !derived.FullPage || !derived.OmitBackground {
		t.Errorf("derived = %+v, want png full-page omit-background", derived)
	}
}

func TestWithViewportCopies(t *testing.T) {
	t.Parallel()

	v := NewViewport(800, 600)
	opts := NewCaptureOptions().WithViewport(v)
	v.Width = 1
	if opts.Viewport.Width != 800 {
		t.Errorf("viewport aliased the caller's value: width = %d", opts.Viewport.Width)
	}
}

func TestHasQuality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format ImageFormat
		want   bool
	}{
		{FormatJPEG, true},
		{FormatWebP, true},
		{FormatPNG, false},
	}
	for _, tt := range tests {
		if got := tt.format.hasQuality(); got != tt.want {
			t.Errorf("%s.hasQuality() = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestViewportScaleDefaults(t *testing.T) {
	t.Parallel()

	if got := (Viewport{Width: 100, Height: 100}).scale(); got != 1.0 {
		t.Errorf("zero DeviceScaleFactor scales to %v, want 1.0", got)
	}
	if got := NewViewport(100, 100).WithScale(2.5).scale(); got != 2.5 {
		t.Errorf("scale = %v, want 2.5", got)
	}
}

func TestClipRegionScaleDefaults(t *testing.T) {
	t.Parallel()

	if got := (ClipRegion{Width: 10, Height: 10}).scale(); got != 1.0 {
		t.Errorf("zero Scale scales to %v, want 1.0", got)
	}
	if got := NewClipRegion(0, 0, 10, 10).WithScale(0.5).scale(); got != 0.5 {
		t.Errorf("scale = %v, want 0.5", got)
	}
}

func TestPresets(t *testing.T) {
	t.Parallel()

	if got := RawPNG(); got.Format != FormatPNG {
		t.Errorf("RawPNG format = %q", got.Format)
	}
	if got := HighQualityJPEG(); got.format() != FormatJPEG || got.Quality != 95 {
		t.Errorf("HighQualityJPEG = %+v, want jpeg at 95", got)
	}
	if got := HiDPI(); got.Viewport == nil || got.Viewport.DeviceScaleFactor != 2.0 {
		t.Errorf("HiDPI viewport = %+v, want 2.0 scale", got.Viewport)
	}
	if got := UltraHiDPI(); got.Viewport == nil || got.Viewport.DeviceScaleFactor != 3.0 {
		t.Errorf("UltraHiDPI viewport = %+v, want 3.0 scale", got.Viewport)
	}
}
