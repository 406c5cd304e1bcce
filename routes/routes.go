package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crossfire/audio"
	"crossfire/bot"
	"crossfire/rooms"
)

// Register wires the REST boundary: health probe, room lookup for the join
// screen, and the voice/persona catalogs. Everything stateful happens over
// the websocket.
func Register(r *gin.Engine, dir *rooms.Directory) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/rooms/:code", func(c *gin.Context) {
			roomID, ok := dir.ResolveCode(c.Param("code"))
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": rooms.ErrRoomNotFound.Error()})
				return
			}
			snap, err := dir.Get(roomID)
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"room": snap})
		})

		api.GET("/voices", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"voices": audio.Voices()})
		})

		api.GET("/personas", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"personas": bot.Personas()})
		})
	}
}
