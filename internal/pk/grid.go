package pk

import "math"

// MaxGridSamples bounds the size of a generated grid.
const MaxGridSamples = 1_000_000

// MinWindowHours is the narrowest default or display window.
const MinWindowHours = 24.0

// WindowOptions tune DefaultWindow.
type WindowOptions struct {
	// PadFactor extends the window past max(now, last dose) by this share of
	// the dosing span.
	PadFactor float64
	// LookAheadH is added after the padding.
	LookAheadH float64
}

// DefaultWindowOptions returns the padding used by the levels view.
func DefaultWindowOptions() WindowOptions {
	return WindowOptions{PadFactor: 0.25, LookAheadH: 0}
}

// DefaultWindow spans from the earliest dose to now, padded by a share of
// the span plus look-ahead, and is at least MinWindowHours wide.
func DefaultWindow(doses []DoseEvent, nowH float64, opts WindowOptions) (startH, endH float64) {
	startH, last := nowH, nowH
	for _, d := range doses {
		startH = math.Min(startH, d.timeH)
		last = math.Max(last, d.timeH)
	}
	span := last - startH
	endH = last + span*math.Max(opts.PadFactor, 0) + math.Max(opts.LookAheadH, 0)
	if endH-startH < MinWindowHours {
		endH = startH + MinWindowHours
	}
	return startH, endH
}

// DisplayWindow returns the viewport of [startH, endH] shown at the given
// zoom: total/zoom wide but at least MinWindowHours, centred on now and
// kept inside the range.
func DisplayWindow(startH, endH, nowH, zoom float64) (fromH, toH float64) {
	if zoom <= 0 || math.IsNaN(zoom) {
		zoom = 1
	}
	total := endH - startH
	width := math.Max(total/zoom, MinWindowHours)
	if width >= total {
		return startH, startH + width
	}
	fromH = nowH - width/2
	if fromH < startH {
		fromH = startH
	}
	if fromH+width > endH {
		fromH = endH - width
	}
	return fromH, fromH + width
}

// Grid returns evenly spaced sample hours from startH to endH inclusive.
func Grid(startH, endH, stepH float64) ([]float64, error) {
	for _, v := range []float64{startH, endH, stepH} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, invalid("window", "bounds and step must be finite")
		}
	}
	if stepH <= 0 {
		return nil, invalid("step", "must be greater than zero")
	}
	if endH < startH {
		return nil, invalid("window", "end is before start")
	}
	nf := math.Floor((endH-startH)/stepH+1e-9) + 1
	if nf > MaxGridSamples {
		return nil, invalid("step", "window needs %.0f samples, limit is %d", nf, MaxGridSamples)
	}
	n := int(nf)
	out := make([]float64, n)
	for i := range out {
		out[i] = startH + float64(i)*stepH
	}
	return out, nil
}
