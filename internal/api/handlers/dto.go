// dto.go — типы ответов API (JSON camelCase) и конвертация из доменных моделей.
package handlers

import (
	"time"

	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/service"
)

type noteResponse struct {
	UniqueID  string    `json:"uniqueId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type fileResponse struct {
	FileID        string         `json:"fileId"`
	List          string         `json:"list"`
	OwnerID       string         `json:"ownerId"`
	Key           string         `json:"key"`
	FileName      string         `json:"fileName"`
	AccessType    string         `json:"accessType"`
	SeqPos        int            `json:"seqPos"`
	SlotPosition  string         `json:"slotPosition"`
	Duration      *string        `json:"duration"`
	FrameRate     *string        `json:"frameRate"`
	Resolution    *string        `json:"resolution"`
	MetadataError *string        `json:"metadataError,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	URL           string         `json:"url,omitempty"`
	Notes         []noteResponse `json:"notes,omitempty"`
}

type itemErrorResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type projectResponse struct {
	ProjectID    string    `json:"projectId"`
	ProjectTitle string    `json:"projectTitle"`
	CreatedAt    time.Time `json:"createdAt"`
}

type programResponse struct {
	ProgramID    string    `json:"programId"`
	ProgramTitle string    `json:"programTitle"`
	Position     int       `json:"position"`
	CreatedAt    time.Time `json:"createdAt"`
}

type deleteOwnerResponse struct {
	Success      bool     `json:"success"`
	DeletedFiles int      `json:"deletedFiles"`
	OrphanedKeys []string `json:"orphanedKeys"`
}

func toNoteResponse(n model.Note) noteResponse {
	return noteResponse{UniqueID: n.UniqueID, Text: n.Text, CreatedAt: n.CreatedAt}
}

func toFileResponse(rec *model.FileRecord, url string) fileResponse {
	resp := fileResponse{
		FileID:        rec.FileID,
		List:          string(rec.Container.Kind),
		OwnerID:       rec.Container.ID,
		Key:           rec.Key,
		FileName:      rec.FileName,
		AccessType:    string(rec.AccessType),
		SeqPos:        rec.SeqPos,
		SlotPosition:  rec.SlotPosition,
		Duration:      rec.Duration,
		FrameRate:     rec.FrameRate,
		Resolution:    rec.Resolution,
		MetadataError: rec.MetadataError,
		CreatedAt:     rec.CreatedAt,
		URL:           url,
	}
	for _, n := range rec.Notes {
		resp.Notes = append(resp.Notes, toNoteResponse(n))
	}
	return resp
}

func toFileResponses(recs []*model.FileRecord) []fileResponse {
	out := make([]fileResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toFileResponse(rec, ""))
	}
	return out
}

func toItemErrors(errs []service.ItemError) []itemErrorResponse {
	out := make([]itemErrorResponse, 0, len(errs))
	for _, e := range errs {
		out = append(out, itemErrorResponse{ID: e.ID, Error: e.Error})
	}
	return out
}

func toDeleteOwnerResponse(res *service.DeleteOwnerResult) deleteOwnerResponse {
	orphaned := res.OrphanedKeys
	if orphaned == nil {
		orphaned = []string{}
	}
	return deleteOwnerResponse{
		Success:      len(orphaned) == 0,
		DeletedFiles: res.DeletedFiles,
		OrphanedKeys: orphaned,
	}
}
