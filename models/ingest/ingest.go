package ingest

import (
	"gohan/variantstore/models"

	"github.com/google/uuid"
)

type State string

const (
	Queued  State = "Queued"
	Running State = "Running"
	Done    State = "Done"
	Error   State = "Error"
)

// LoadRequest tracks one file load submitted through the http api or the cli
type LoadRequest struct {
	Id        uuid.UUID           `json:"id"`
	StudyId   int                 `json:"studyId"`
	Filename  string              `json:"filename"`
	FileId    int                 `json:"fileId,omitempty"`
	State     State               `json:"state"`
	Message   string              `json:"message"`
	Options   map[string]any      `json:"options,omitempty"`
	Result    *models.WriteResult `json:"result,omitempty"`
	CreatedAt string              `json:"createdAt"`
	UpdatedAt string              `json:"updatedAt"`
}

type LoadResponseDTO struct {
	Id       uuid.UUID `json:"id"`
	Filename string    `json:"filename"`
	State    State     `json:"state"`
	Message  string    `json:"message"`
}
