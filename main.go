package main

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"crossfire/ai"
	"crossfire/audio"
	"crossfire/bot"
	"crossfire/db"
	"crossfire/debate"
	"crossfire/rooms"
	"crossfire/routes"
	"crossfire/websocket"
)

func main() {
	godotenv.Load()

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		log.Fatal("GEMINI_API_KEY not set in environment")
	}

	gemini := ai.NewGemini(geminiKey)
	synth := ai.NewHTTPSynthesizer(os.Getenv("TTS_ENDPOINT"))
	stt := ai.NewHTTPTranscriber(os.Getenv("STT_ENDPOINT"))

	var archive debate.Archiver
	if client := db.Connect(); client != nil {
		archive = db.NewArchiveStore(db.Database(client))
	}

	hub := websocket.NewHub()
	dir := rooms.NewDirectory()
	sessions := rooms.NewSessionRegistry()
	flow := debate.NewFlow()
	seq := audio.NewSequencer(synth)
	pipeline := audio.NewPipeline(flow, gemini, gemini, seq, hub)

	// The bot gates its turns through the orchestrator and the orchestrator
	// dispatches turns to the bot; the cycle is wired here through the
	// callback struct.
	var orch *debate.Orchestrator
	bots := bot.NewOrchestrator(flow, gemini, seq, hub, bot.Callbacks{
		AudioReady: func(roomID string) { orch.BotAudioReady(roomID) },
	})
	orch = debate.NewOrchestrator(dir, flow, hub, bots, seq, stt, gemini, gemini, archive)

	server := websocket.NewServer(hub, dir, sessions, orch, pipeline, seq, stt)
	stop := make(chan struct{})
	go server.RunSweeper(30*time.Second, stop)
	defer close(stop)

	r := gin.Default()
	r.GET("/ws", func(c *gin.Context) {
		server.ServeWs(c.Writer, c.Request)
	})
	routes.Register(r, dir)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}

	log.Println("Server running on port", port)
	r.Run(":" + port)
}
