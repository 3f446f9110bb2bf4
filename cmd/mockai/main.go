// Command mockai is a standalone mock of the three OpenAI endpoints the
// service calls (transcription, chat completion, speech). Point the AI
// client's base URL at it for local development without credentials:
//
//	go run ./cmd/mockai
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"
)

var cannedTranscripts = []string{
	"how do curses work",
	"how does combat work",
	"how do I win the game",
	"how do we set up the board",
}

var transcriptIndex atomic.Uint64

func transcriptionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	size, _ := io.Copy(io.Discard, file)

	text := cannedTranscripts[int(transcriptIndex.Add(1)-1)%len(cannedTranscripts)]

	log.Printf("transcription: file=%s size=%d -> %q", header.Filename, size, text)

	// Simulate processing latency
	time.Sleep(200 * time.Millisecond)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"text": text})
}

func chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request body", http.StatusBadRequest)
		return
	}

	question := ""
	if n := len(req.Messages); n > 0 {
		question = req.Messages[n-1].Content
	}
	log.Printf("chat completion: question=%q", question)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "mock-completion",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": fmt.Sprintf("Here is a mock answer to: %s", question),
				},
				"finish_reason": "stop",
			},
		},
	})
}

func speechHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	io.Copy(io.Discard, r.Body)
	log.Printf("speech synthesis request")

	// A few bytes of fake audio is enough for the relay to forward
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Write([]byte("mock-mp3-bytes"))
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", transcriptionHandler)
	mux.HandleFunc("/v1/chat/completions", chatHandler)
	mux.HandleFunc("/v1/audio/speech", speechHandler)

	addr := ":8085"
	log.Printf("mock AI provider listening on %s (base URL http://localhost%s/v1)", addr, addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}
