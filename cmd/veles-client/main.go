package main

import (
	"context"
	"flag"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dkurenkov/veles/client"
	"github.com/dkurenkov/veles/core/audio/miniaudio"
	"github.com/dkurenkov/veles/core/audio/portaudio"
	"github.com/dkurenkov/veles/core/protocol"
)

type audioDevice interface {
	StartCapture(ctx context.Context, onAudio func(chunk []byte)) error
	StopCapture() error
	Play(chunk []byte) error
	ClearPlayback()
	Close()
}

func openDevice(backend string) (audioDevice, error) {
	switch backend {
	case "portaudio":
		return portaudio.NewClient(protocol.FrameSize / 2)
	default:
		return miniaudio.NewClient()
	}
}

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "session websocket URL")
	audioBackend := flag.String("audio", "malgo", "audio device backend (malgo, portaudio)")
	flag.Parse()

	device, err := openDevice(*audioBackend)
	if err != nil {
		log.Fatalf("failed to open audio device: %v", err)
	}
	defer device.Close()

	queue := client.NewPlaybackQueue(device)
	defer queue.Close()

	var program *tea.Program
	transport := client.NewTransport(*serverURL,
		client.WithControlHandler(func(msg protocol.ControlMessage) {
			program.Send(client.ControlMsg(msg))
		}),
		client.WithAudioHandler(queue.Enqueue),
		client.WithStateHandler(func(state client.ConnectionState) {
			program.Send(client.StateMsg(state))
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The mic runs for the whole session; frames captured outside a
	// recording are dropped inside the transport.
	if err := device.StartCapture(ctx, transport.SendFrame); err != nil {
		log.Fatalf("failed to start audio capture: %v", err)
	}
	defer device.StopCapture()

	program = tea.NewProgram(
		client.NewModel(transport, queue),
		tea.WithAltScreen(),
	)
	go func() { _ = transport.Run(ctx) }()

	if _, err := program.Run(); err != nil {
		log.Fatalf("failed to run interface: %v", err)
	}
}
