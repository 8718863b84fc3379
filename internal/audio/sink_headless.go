//go:build headless

package audio

// NewDeviceSink always fails in headless builds.
func NewDeviceSink(sampleRate, channels int) (Sink, error) {
	return nil, ErrNoDevice
}
