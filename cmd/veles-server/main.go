package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	orchestration "github.com/dkurenkov/veles/core"
	"github.com/dkurenkov/veles/core/commands"
	"github.com/dkurenkov/veles/core/llms/groq"
	"github.com/dkurenkov/veles/core/memory"
	deepgramstt "github.com/dkurenkov/veles/core/speechtotext/deepgram"
	deepgramtts "github.com/dkurenkov/veles/core/texttospeech/deepgram"
	"github.com/dkurenkov/veles/server"
)

// profileModels maps the -profile flag to a Groq model. The session core
// never sees this choice; it gets a ready backend.
var profileModels = map[string]string{
	"versatile": "llama-3.3-70b-versatile",
	"fast":      "llama-3.1-8b-instant",
}

func main() {
	addr := flag.String("addr", ":8080", "address to listen on")
	profile := flag.String("profile", "versatile", "backend profile (versatile, fast)")
	memoryPath := flag.String("memory", "facts.json", "path to the persisted user facts file")
	flag.Parse()

	model, ok := profileModels[*profile]
	if !ok {
		log.Fatalf("unknown profile %q", *profile)
	}

	groqKey := os.Getenv("GROQ_API_KEY")
	if groqKey == "" {
		log.Fatal("GROQ_API_KEY is not set")
	}
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Fatal("DEEPGRAM_API_KEY is not set")
	}

	store := memory.Open(*memoryPath)
	executor := commands.NewSystemExecutor()
	tools := commands.Tools(executor)

	backend := groq.NewClient(groqKey,
		groq.WithModel(model),
		groq.WithTools(tools...),
	)
	observer := groq.NewFactObserver(groqKey)
	synthesizer := deepgramtts.NewSynthesisEngine(deepgramKey)

	responder := orchestration.NewTextResponder(backend, executor, tools, store, observer)

	srv := server.New(func() []orchestration.SessionOption {
		return []orchestration.SessionOption{
			orchestration.WithBackend(backend),
			// The transcriber accumulates one utterance at a time, so
			// every session gets its own.
			orchestration.WithTranscriber(deepgramstt.NewTranscriptionEngine(deepgramKey)),
			orchestration.WithSynthesizer(synthesizer),
			orchestration.WithFactStore(store),
			orchestration.WithFactObserver(observer),
			orchestration.WithExecutor(executor),
			orchestration.WithTools(tools),
		}
	}, server.WithChatResponder(responder))

	fmt.Printf("Listening on %s (profile %s)\n", *addr, *profile)
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
