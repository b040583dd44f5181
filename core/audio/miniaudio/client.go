// Package miniaudio provides microphone capture and speaker playback through
// malgo. Capture runs at the transcription rate, playback at the synthesis
// rate; the two devices are independent.
package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/dkurenkov/veles/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playbackClient
	captureClient
}

func NewClient(opts ...Option) (*Client, error) {
	options := options{
		captureEncoding:  audio.GetDefaultEncodingInfo(),
		playbackEncoding: audio.GetDefaultPlaybackEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := Client{
		audioContext: audioCtx,
	}

	if err := client.playbackClient.Init(audioCtx, options.playbackEncoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}
	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if err := client.captureClient.Init(audioCtx, options.captureEncoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

type options struct {
	captureEncoding  audio.EncodingInfo
	playbackEncoding audio.EncodingInfo
}

type Option func(*options)

func WithCaptureEncoding(encoding audio.EncodingInfo) Option {
	return func(o *options) { o.captureEncoding = encoding }
}

func WithPlaybackEncoding(encoding audio.EncodingInfo) Option {
	return func(o *options) { o.playbackEncoding = encoding }
}

func (c *Client) StartCapture(_ context.Context, onAudio func(chunk []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) Play(chunk []byte) error {
	return c.playbackClient.Play(chunk)
}

func (c *Client) ClearPlayback() {
	c.playbackClient.Clear()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) CaptureEncodingInfo() audio.EncodingInfo {
	return c.captureClient.encoding
}

func (c *Client) PlaybackEncodingInfo() audio.EncodingInfo {
	return c.playbackClient.encoding
}
