package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/voxnote/voxnote/pkg/logger"
)

// MalgoOpener opens the default system microphone through miniaudio
type MalgoOpener struct {
	logger *logger.Logger
}

// NewMalgoOpener creates a new malgo-backed opener
func NewMalgoOpener(logger *logger.Logger) *MalgoOpener {
	return &MalgoOpener{logger: logger.Named("capture")}
}

// Open acquires the default capture device as mono float32 at the requested
// rate. Frames are regrouped to cfg.FrameSize before the callback fires.
func (o *MalgoOpener) Open(cfg CaptureConfig, cb FrameCallback) (Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = Channels
	deviceConfig.SampleRate = uint32(cfg.SampleRate)

	framer := NewFramer(cfg.SampleRate, cfg.FrameSize)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			for _, frame := range framer.PushBytes(data) {
				cb(frame)
			}
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to open capture device: %w", err)
	}

	o.logger.Debug("Capture device opened",
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Int("frame_size", cfg.FrameSize))

	return &malgoDevice{ctx: ctx, device: dev, logger: o.logger}, nil
}

type malgoDevice struct {
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	logger    *logger.Logger
	closeOnce sync.Once
}

func (d *malgoDevice) Start() error {
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	return nil
}

func (d *malgoDevice) Close() error {
	d.closeOnce.Do(func() {
		d.device.Uninit()
		d.ctx.Uninit()
		d.ctx.Free()
		d.logger.Debug("Capture device released")
	})
	return nil
}
