package note

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/access"
	"github.com/healthvault/healthvault/internal/platform/audit"
	"github.com/healthvault/healthvault/internal/platform/auth"
	"github.com/healthvault/healthvault/internal/platform/filestore"
)

const maxTitleLen = 160

type Service struct {
	repo   Repository
	files  filestore.Store
	access *access.Evaluator
	audit  *audit.Recorder
	log    zerolog.Logger
}

func NewService(repo Repository, files filestore.Store, eval *access.Evaluator, rec *audit.Recorder, log zerolog.Logger) *Service {
	return &Service{repo: repo, files: files, access: eval, audit: rec, log: log}
}

// CreateInput is the note creation payload.
type CreateInput struct {
	PatientID uuid.UUID `json:"patient_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
}

// Create writes a note about a patient. Patients may write notes on their
// own record; doctors need a NOTES (or ALL) consent. A doctor author is
// recorded on the note.
func (s *Service) Create(ctx context.Context, in CreateInput) (*ClinicalNote, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperr.Field("patient_id", "patient is required")
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperr.Field("title", "title is required")
	}
	if len(in.Title) > maxTitleLen {
		return nil, apperr.Field("title", "title is too long")
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.AllowedCreate(ctx, actor, in.PatientID, access.CategoryNotes) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}

	n := &ClinicalNote{
		PatientID: in.PatientID,
		Title:     in.Title,
		Body:      in.Body,
	}
	if actor.Role == auth.RoleDoctor {
		doctorID := actor.ID
		n.DoctorID = &doctorID
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	s.record(ctx, actor, audit.ActionCreate, "clinical_note", n.ID)
	return n, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ClinicalNote, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionRead, n) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}
	s.record(ctx, actor, audit.ActionRead, "clinical_note", n.ID)
	return n, nil
}

// UpdateInput carries the mutable note fields.
type UpdateInput struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*ClinicalNote, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionWrite, n) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperr.Field("title", "title is required")
	}
	n.Title = in.Title
	n.Body = in.Body
	if err := s.repo.Update(ctx, n); err != nil {
		return nil, err
	}
	s.record(ctx, actor, audit.ActionUpdate, "clinical_note", n.ID)
	return n, nil
}

// Delete removes the note, its attachment rows and their stored files.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionWrite, n) {
		return apperr.New(apperr.AccessDenied, "access denied")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	for _, a := range n.Attachments {
		if err := s.files.Delete(ctx, a.FileID); err != nil {
			s.log.Warn().Err(err).Str("file_id", a.FileID).Msg("orphaned attachment file")
		}
	}
	s.record(ctx, actor, audit.ActionDelete, "clinical_note", id)
	return nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error) {
	actor := access.ActorFromContext(ctx)
	probe := &ClinicalNote{PatientID: patientID}
	if !s.access.Allowed(ctx, actor, access.ActionRead, probe) {
		return nil, 0, apperr.New(apperr.AccessDenied, "access denied")
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// AttachInput is an attachment upload after multipart binding.
type AttachInput struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Attach stores a file and links it to the note.
func (s *Service) Attach(ctx context.Context, noteID uuid.UUID, in AttachInput) (*Attachment, error) {
	n, err := s.repo.GetByID(ctx, noteID)
	if err != nil {
		return nil, err
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionWrite, n) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}
	if len(in.Content) == 0 {
		return nil, apperr.Field("file", "file is required")
	}

	meta, err := s.files.Save(ctx, filestore.FileMetadata{
		FileName:    in.FileName,
		ContentType: in.ContentType,
		CreatedBy:   actor.ID.String(),
	}, bytes.NewReader(in.Content))
	if err != nil {
		return nil, mapFileError(err)
	}

	a := &Attachment{
		NoteID:      n.ID,
		FileID:      meta.ID,
		FileName:    meta.FileName,
		ContentType: meta.ContentType,
		Size:        meta.Size,
	}
	if err := s.repo.CreateAttachment(ctx, a); err != nil {
		if delErr := s.files.Delete(ctx, meta.ID); delErr != nil {
			s.log.Warn().Err(delErr).Str("file_id", meta.ID).Msg("orphaned attachment file")
		}
		return nil, err
	}
	s.record(ctx, actor, audit.ActionCreate, "note_attachment", a.ID)
	return a, nil
}

// OpenAttachment streams an attachment's content. Access follows the note.
func (s *Service) OpenAttachment(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Attachment, error) {
	a, err := s.repo.GetAttachment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	n, err := s.repo.GetByID(ctx, a.NoteID)
	if err != nil {
		return nil, nil, err
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionRead, n) {
		return nil, nil, apperr.New(apperr.AccessDenied, "access denied")
	}

	rc, _, err := s.files.Open(ctx, a.FileID)
	if err != nil {
		return nil, nil, mapFileError(err)
	}
	s.record(ctx, actor, audit.ActionRead, "note_attachment", a.ID)
	return rc, a, nil
}

func (s *Service) DeleteAttachment(ctx context.Context, id uuid.UUID) error {
	a, err := s.repo.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.repo.GetByID(ctx, a.NoteID)
	if err != nil {
		return err
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionWrite, n) {
		return apperr.New(apperr.AccessDenied, "access denied")
	}
	if err := s.repo.DeleteAttachment(ctx, id); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, a.FileID); err != nil {
		s.log.Warn().Err(err).Str("file_id", a.FileID).Msg("orphaned attachment file")
	}
	s.record(ctx, actor, audit.ActionDelete, "note_attachment", id)
	return nil
}

func (s *Service) record(ctx context.Context, actor access.Actor, action audit.Action, targetType string, id uuid.UUID) {
	s.audit.Record(ctx, audit.Event{
		ActorID:    actor.ID,
		Action:     action,
		TargetType: targetType,
		TargetID:   id.String(),
	})
}

func mapFileError(err error) error {
	switch {
	case errors.Is(err, filestore.ErrFileNotFound):
		return apperr.New(apperr.NotFound, "file not found")
	case errors.Is(err, filestore.ErrFileTooLarge),
		errors.Is(err, filestore.ErrInvalidContentType),
		errors.Is(err, filestore.ErrMissingFileName):
		return apperr.Field("file", err.Error())
	default:
		return err
	}
}
