package embed

import "strconv"

const (
	MobileBreakpointPx   = 480
	DesktopFrameWidthPx  = 400
	DesktopFrameHeightPx = 550
	ViewportMarginPx     = 40
)

// FrameSize is the iframe size in CSS pixels.
type FrameSize struct {
	Width  int
	Height int
}

// ComputeFrameSize applies the responsive policy: near-fullscreen below the breakpoint, fixed size above it.
func ComputeFrameSize(viewportWidth int, viewportHeight int) FrameSize {
	if viewportWidth < MobileBreakpointPx {
		return FrameSize{
			Width:  nonNegative(viewportWidth - ViewportMarginPx),
			Height: nonNegative(viewportHeight - ViewportMarginPx),
		}
	}
	return FrameSize{Width: DesktopFrameWidthPx, Height: DesktopFrameHeightPx}
}

// ClampFrameHeight limits a requested frame height to the viewport height minus the margin.
func ClampFrameHeight(requestedHeight int, viewportHeight int) int {
	limit := nonNegative(viewportHeight - ViewportMarginPx)
	if requestedHeight > limit {
		return limit
	}
	return nonNegative(requestedHeight)
}

func nonNegative(value int) int {
	if value < 0 {
		return 0
	}
	return value
}

func pixels(value int) string {
	return strconv.Itoa(value) + "px"
}
