package audiocapture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice opens microphone streams through PortAudio.
type PortAudioDevice struct {
	FramesPerBuffer int // default 1024
	Channels        int // default 1
}

// DeviceInfo describes an input device.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	Default           bool
}

// ListInputDevices returns the input-capable devices PortAudio can see.
func ListInputDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []DeviceInfo
	for _, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		out = append(out, DeviceInfo{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			Default:           def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}

// Open opens deviceID, matched by name, or the default input when empty.
func (p *PortAudioDevice) Open(deviceID string, onChunk func(Chunk)) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}

	dev, err := lookupInput(deviceID)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	channels := p.Channels
	if channels == 0 {
		channels = 1
	}
	frames := p.FramesPerBuffer
	if frames == 0 {
		frames = 1024
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = channels
	params.FramesPerBuffer = frames

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		buf := make([]int16, len(in))
		copy(buf, in)
		onChunk(Chunk{Int: buf})
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	return &paStream{
		stream: stream,
		format: Format{SampleRate: int(params.SampleRate), Channels: channels},
	}, nil
}

func lookupInput(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("input device not found: %s", deviceID)
}

type paStream struct {
	stream *portaudio.Stream
	format Format

	closeOnce sync.Once
}

func (s *paStream) Format() Format { return s.format }
func (s *paStream) Start() error   { return s.stream.Start() }

// Stop waits for pending buffers, so no callback runs after it returns.
func (s *paStream) Stop() error { return s.stream.Stop() }

func (s *paStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.stream.Close()
		portaudio.Terminate()
	})
	return err
}
