// audioclient streams a WAV file to the relay's websocket endpoint at
// real-time pace, signals end-of-input, and prints every event with latency
// measured from the end signal.
package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample-44khz.wav", "Path to WAV file (16-bit PCM mono)")
	serverURL := flag.String("server", "ws://localhost:8765/v1/stream", "Relay websocket URL")
	mode := flag.String("mode", "", "Suggestion mode override (incremental or finalize-once)")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}

	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}

	// Real-time pacing: bytes per chunk interval at the file's own rate.
	bytesPerSecond := int(sampleRate) * int(numChannels) * int(bitsPerSample) / 8
	chunkSize := bytesPerSecond * chunkIntervalMs / 1000

	url := *serverURL
	if *mode != "" {
		url += "?mode=" + *mode
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", url)

	type event struct {
		Type     string `json:"type"`
		Data     string `json:"data"`
		Sequence int64  `json:"sequence"`
	}

	received := make(chan struct{})
	var endSignaledNanos atomic.Int64
	go func() {
		defer close(received)
		for {
			var ev event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			latency := ""
			if nanos := endSignaledNanos.Load(); nanos > 0 {
				since := time.Since(time.Unix(0, nanos)).Round(time.Millisecond)
				latency = " (+" + since.String() + " after end)"
			}
			log.Printf("[%d] %s: %s%s", ev.Sequence, ev.Type, ev.Data, latency)
		}
	}()

	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)

		if err := conn.WriteMessage(websocket.BinaryMessage, audioChunk[:n]); err != nil {
			log.Fatalf("Failed to send chunk: %v", err)
		}

		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}

		// Simulate real-time streaming
		time.Sleep(chunkIntervalMs * time.Millisecond)
	}

	elapsed := time.Since(startTime)
	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, elapsed)

	log.Println("Signaling end-of-input, waiting for remaining events...")
	endSignaled := time.Now()
	endSignaledNanos.Store(endSignaled.UnixNano())
	end, _ := json.Marshal(map[string]string{"type": "end"})
	if err := conn.WriteMessage(websocket.TextMessage, end); err != nil {
		log.Fatalf("Failed to send end marker: %v", err)
	}

	select {
	case <-received:
		log.Printf("Stream completed in %v after end signal", time.Since(endSignaled).Round(time.Millisecond))
	case <-time.After(60 * time.Second):
		log.Fatal("Timed out waiting for the server to close the stream")
	}
}
