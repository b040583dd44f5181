// Package portaudio is the alternative audio device backed by PortAudio.
// Capture and playback run on separate streams so they can use different
// sample rates.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/dkurenkov/veles/core/audio"
)

type Client struct {
	captureEncoding  audio.EncodingInfo
	playbackEncoding audio.EncodingInfo

	bufferSize int

	inStream  *portaudio.Stream
	outStream *portaudio.Stream
	in        []int16
	out       []int16

	mu            sync.Mutex
	leftoverAudio []byte
	capturing     bool
	captureDone   chan struct{}
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	client := &Client{
		captureEncoding:  audio.GetDefaultEncodingInfo(),
		playbackEncoding: audio.GetDefaultPlaybackEncodingInfo(),
		bufferSize:       bufferSize,
		in:               make([]int16, bufferSize),
		out:              make([]int16, bufferSize),
	}

	var err error
	client.inStream, err = portaudio.OpenDefaultStream(1, 0,
		float64(client.captureEncoding.SampleRate), bufferSize, client.in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open capture stream: %w", err)
	}

	client.outStream, err = portaudio.OpenDefaultStream(0, 1,
		float64(client.playbackEncoding.SampleRate), bufferSize, client.out)
	if err != nil {
		client.inStream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open playback stream: %w", err)
	}
	if err := client.outStream.Start(); err != nil {
		client.inStream.Close()
		client.outStream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start playback stream: %w", err)
	}

	return client, nil
}

// StartCapture reads microphone buffers on its own goroutine until
// StopCapture or ctx ends.
func (c *Client) StartCapture(ctx context.Context, onAudio func(chunk []byte)) error {
	c.mu.Lock()
	if c.capturing {
		c.mu.Unlock()
		return nil
	}
	c.capturing = true
	done := make(chan struct{})
	c.captureDone = done
	c.mu.Unlock()

	if err := c.inStream.Start(); err != nil {
		c.mu.Lock()
		c.capturing = false
		c.captureDone = nil
		c.mu.Unlock()
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			default:
			}

			if err := c.inStream.Read(); err != nil {
				logger.Warn("failed to read from capture stream", "error", err)
				continue
			}

			audioBuffer := bytes.Buffer{}
			_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			onAudio(audioBuffer.Bytes())
		}
	}()

	return nil
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return nil
	}
	c.capturing = false
	close(c.captureDone)
	c.captureDone = nil
	c.mu.Unlock()

	if err := c.inStream.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture stream: %w", err)
	}
	return nil
}

// Play writes in device-buffer-sized slices, carrying the remainder over to
// the next call.
func (c *Client) Play(chunk []byte) error {
	bufferSize := c.bufferSize * 2

	c.mu.Lock()
	defer c.mu.Unlock()
	buffered := append(c.leftoverAudio, chunk...)
	for len(buffered) >= bufferSize {
		_ = binary.Read(bytes.NewBuffer(buffered[:bufferSize]), binary.LittleEndian, c.out)
		if err := c.outStream.Write(); err != nil {
			logger.Warn("failed to write to playback stream", "error", err)
		}
		buffered = buffered[bufferSize:]
	}
	c.leftoverAudio = append([]byte(nil), buffered...)

	return nil
}

func (c *Client) ClearPlayback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leftoverAudio = nil
}

func (c *Client) Close() {
	_ = c.StopCapture()
	c.inStream.Close()
	c.outStream.Close()
	portaudio.Terminate()
}

func (c *Client) CaptureEncodingInfo() audio.EncodingInfo {
	return c.captureEncoding
}

func (c *Client) PlaybackEncodingInfo() audio.EncodingInfo {
	return c.playbackEncoding
}
