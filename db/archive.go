package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"crossfire/models"
)

// ArchiveStore writes the immutable record of each finished debate. Live
// room state never touches the database; only the outcome lands here, best
// effort, after completion.
type ArchiveStore struct {
	debates *mongo.Collection
}

func NewArchiveStore(database *mongo.Database) *ArchiveStore {
	return &ArchiveStore{debates: database.Collection("debates")}
}

type debateRecord struct {
	RoomID       string                       `bson:"roomId"`
	Code         string                       `bson:"code"`
	Name         string                       `bson:"name"`
	Resolution   string                       `bson:"resolution"`
	Mode         models.RoomMode              `bson:"mode"`
	Participants []models.ParticipantSnapshot `bson:"participants"`
	Flow         models.FlowSnapshot          `bson:"flow"`
	Verdict      models.Verdict               `bson:"verdict"`
	CompletedAt  time.Time                    `bson:"completedAt"`
}

// SaveDebate implements debate.Archiver.
func (a *ArchiveStore) SaveDebate(ctx context.Context, room models.RoomSnapshot, flow models.FlowSnapshot, verdict models.Verdict) error {
	_, err := a.debates.InsertOne(ctx, debateRecord{
		RoomID:       room.ID,
		Code:         room.Code,
		Name:         room.Name,
		Resolution:   room.Resolution,
		Mode:         room.Mode,
		Participants: room.Participants,
		Flow:         flow,
		Verdict:      verdict,
		CompletedAt:  time.Now(),
	})
	return err
}
