package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Fade ramps the gain of the first n frames of samples from `from` to `to`
// along a smoothstep curve, in place. Frames past n are left untouched when
// fading in and silenced when fading out to zero.
func Fade(samples []float32, channels, n int, from, to float64) {
	if channels <= 0 {
		return
	}
	frames := len(samples) / channels
	if n > frames {
		n = frames
	}
	for i := range frames {
		var gain float64
		if i < n {
			progress := float64(i) / float64(n)
			gain = from + (to-from)*Smoothstep(progress)
		} else {
			gain = to
		}
		if gain == 1 {
			continue
		}
		for c := range channels {
			samples[i*channels+c] = clip(float64(samples[i*channels+c]) * gain)
		}
	}
}

// FadeOutTail fades the last n frames of samples to silence, in place.
func FadeOutTail(samples []float32, channels, n int) {
	if channels <= 0 {
		return
	}
	frames := len(samples) / channels
	if n > frames {
		n = frames
	}
	start := (frames - n) * channels
	Fade(samples[start:], channels, n, 1, 0)
}

func clip(v float64) float32 {
	if v > 1 {
		return 1
	} else if v < -1 {
		return -1
	}
	return float32(v)
}
