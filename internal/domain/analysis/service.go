package analysis

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/access"
	"github.com/healthvault/healthvault/internal/platform/audit"
	"github.com/healthvault/healthvault/internal/platform/auth"
	"github.com/healthvault/healthvault/internal/platform/db"
	"github.com/healthvault/healthvault/internal/platform/filestore"
	"github.com/healthvault/healthvault/internal/platform/notify"
	"github.com/healthvault/healthvault/internal/platform/ocr"
)

// Extractor is the text-extraction dependency. Satisfied by ocr.Extractor.
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType, lang string) (*ocr.Result, error)
}

// Directory resolves a patient id to their notification address. Implemented
// by the user service.
type Directory interface {
	EmailOf(ctx context.Context, id uuid.UUID) (email, name string, err error)
}

// TxRunner executes fn atomically. Production wiring uses db.RunInTx.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo      Repository
	files     filestore.Store
	extractor Extractor
	access    *access.Evaluator
	audit     *audit.Recorder
	notifier  *notify.Notifier
	dir       Directory
	runInTx   TxRunner
	mode      ParserMode
	log       zerolog.Logger
}

func NewService(
	repo Repository,
	files filestore.Store,
	extractor Extractor,
	eval *access.Evaluator,
	rec *audit.Recorder,
	notifier *notify.Notifier,
	dir Directory,
	mode ParserMode,
	log zerolog.Logger,
) *Service {
	if mode == "" {
		mode = ModeLines
	}
	return &Service{
		repo:      repo,
		files:     files,
		extractor: extractor,
		access:    eval,
		audit:     rec,
		notifier:  notifier,
		dir:       dir,
		runInTx:   db.RunInTx,
		mode:      mode,
		log:       log,
	}
}

// SetTxRunner overrides the transaction wrapper. Tests use a passthrough.
func (s *Service) SetTxRunner(run TxRunner) { s.runInTx = run }

// UploadInput is the multipart upload payload after binding.
type UploadInput struct {
	PatientID   uuid.UUID
	Title       *string
	OrderID     *string
	Strict      bool
	OCRLanguage string
	FileName    string
	ContentType string
	Content     []byte
}

// Upload runs the full pipeline: store file, create the record, extract
// text, parse results, persist text/date plus the result batch atomically.
//
// Extraction failure is non-fatal by default: the record stays persisted
// with a file reference and null text fields, and the failure is logged
// rather than surfaced. In strict mode (an expected external order id) the
// same failure rejects the whole upload and nothing is kept.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Analysis, error) {
	actor := access.ActorFromContext(ctx)

	if in.PatientID == uuid.Nil {
		return nil, apperr.Field("patient", "patient is required")
	}
	if len(in.Content) == 0 {
		return nil, apperr.Field("file", "file is required")
	}
	if in.Strict && (in.OrderID == nil || *in.OrderID == "") {
		return nil, apperr.Field("order_id", "order id is required")
	}
	if !s.access.AllowedCreate(ctx, actor, in.PatientID, access.CategoryAnalyses) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}

	source := SourcePatient
	if actor.Role == auth.RoleDoctor || actor.Role == auth.RoleAdmin {
		source = SourceDoctor
	}
	if source == SourcePatient && actor.ID != in.PatientID {
		// Uploader may differ from the owner only on doctor-submitted reports.
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}

	lang := in.OCRLanguage
	if lang == "" {
		lang = ocr.DefaultLanguage
	}

	meta, err := s.files.Save(ctx, filestore.FileMetadata{
		FileName:    in.FileName,
		ContentType: in.ContentType,
		CreatedBy:   actor.ID.String(),
	}, bytes.NewReader(in.Content))
	if err != nil {
		return nil, mapFileError(err)
	}

	a := &Analysis{
		PatientID:   in.PatientID,
		Source:      source,
		Title:       in.Title,
		FileID:      meta.ID,
		FileName:    meta.FileName,
		ContentType: meta.ContentType,
		OCRLanguage: lang,
		OrderID:     in.OrderID,
		Status:      StatusPersistedNoText,
	}
	if actor.ID != uuid.Nil {
		uploader := actor.ID
		a.UploadedBy = &uploader
	}

	if in.Strict {
		err = s.uploadStrict(ctx, a, in.Content)
	} else {
		err = s.uploadBestEffort(ctx, a, in.Content)
	}
	if err != nil {
		s.files.Delete(ctx, meta.ID)
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:    actor.ID,
		Action:     audit.ActionCreate,
		TargetType: "analysis",
		TargetID:   a.ID.String(),
		Metadata:   map[string]string{"status": string(a.Status)},
	})
	s.notifyReady(ctx, a)
	return a, nil
}

// uploadBestEffort commits the record first, then applies extraction output
// in a second transaction. A failed extraction leaves the committed record
// untouched.
func (s *Service) uploadBestEffort(ctx context.Context, a *Analysis, content []byte) error {
	if err := s.repo.Create(ctx, a); err != nil {
		return err
	}

	res, err := s.extractor.Extract(ctx, content, a.ContentType, a.OCRLanguage)
	if err != nil {
		s.log.Warn().Err(err).Stringer("analysis_id", a.ID).Msg("text extraction failed, keeping upload without text")
		return nil
	}

	if err := s.persistExtraction(ctx, a, res); err != nil {
		// The record itself is already committed; losing the extraction
		// output degrades this upload to the no-text outcome.
		s.log.Error().Err(err).Stringer("analysis_id", a.ID).Msg("failed to persist extraction output")
	}
	return nil
}

// uploadStrict runs the whole pipeline in one transaction; any failure,
// extraction included, rejects the upload and persists nothing.
func (s *Service) uploadStrict(ctx context.Context, a *Analysis, content []byte) error {
	return s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		res, err := s.extractor.Extract(ctx, content, a.ContentType, a.OCRLanguage)
		if err != nil {
			return err
		}
		return s.persistExtraction(ctx, a, res)
	})
}

// persistExtraction applies the text/date mutation and the result batch as
// one unit of work: the whole batch commits or none of it does.
func (s *Service) persistExtraction(ctx context.Context, a *Analysis, res *ocr.Result) error {
	parsed := ParseResults(res.Text, s.mode)
	results := make([]*AnalysisResult, 0, len(parsed))
	for _, p := range parsed {
		r := &AnalysisResult{AnalysisID: a.ID, TestName: p.TestName}
		if p.Value != "" {
			v := p.Value
			r.Value = &v
		}
		if p.Unit != "" {
			u := p.Unit
			r.Unit = &u
		}
		if p.ReferenceRange != "" {
			ref := p.ReferenceRange
			r.ReferenceRange = &ref
		}
		results = append(results, r)
	}
	measuredAtFromReport(results, res.ReportDate)

	apply := func(ctx context.Context) error {
		text := res.Text
		if err := s.repo.SetExtraction(ctx, a.ID, &text, res.ReportDate, StatusPersisted); err != nil {
			return err
		}
		return s.repo.InsertResults(ctx, results)
	}

	var err error
	if db.TxFromContext(ctx) != nil {
		// Already inside the strict-mode transaction.
		err = apply(ctx)
	} else {
		err = s.runInTx(ctx, apply)
	}
	if err != nil {
		return err
	}

	text := res.Text
	a.OCRText = &text
	a.ReportDate = res.ReportDate
	a.Status = StatusPersisted
	a.Results = results
	return nil
}

func (s *Service) notifyReady(ctx context.Context, a *Analysis) {
	if s.dir == nil {
		return
	}
	email, name, err := s.dir.EmailOf(ctx, a.PatientID)
	if err != nil {
		return
	}
	title := a.FileName
	if a.Title != nil {
		title = *a.Title
	}
	s.notifier.SendUser(ctx, a.PatientID, notify.TemplateAnalysisReady, email, map[string]string{
		"patient_name": name,
		"title":        title,
	})
}

// Get returns one analysis with its results, consent-gated.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionRead, a) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:    actor.ID,
		Action:     audit.ActionRead,
		TargetType: "analysis",
		TargetID:   a.ID.String(),
	})
	return a, nil
}

// ListByPatient lists a patient's analyses, consent-gated against the
// ANALYSES scope.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Analysis, int, error) {
	actor := access.ActorFromContext(ctx)
	probe := &Analysis{PatientID: patientID}
	if !s.access.Allowed(ctx, actor, access.ActionRead, probe) {
		return nil, 0, apperr.New(apperr.AccessDenied, "access denied")
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// OpenFile streams the original uploaded document, consent-gated like the
// record itself.
func (s *Service) OpenFile(ctx context.Context, id uuid.UUID) (*Analysis, *filestore.FileMetadata, []byte, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}

	rc, meta, err := s.files.Open(ctx, a.FileID)
	if err != nil {
		return nil, nil, nil, mapFileError(err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, nil, nil, err
	}
	return a, meta, buf.Bytes(), nil
}

// Delete removes the analysis, its results (cascade) and the stored file.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionWrite, a) {
		return apperr.New(apperr.AccessDenied, "access denied")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.files.Delete(ctx, a.FileID)

	s.audit.Record(ctx, audit.Event{
		ActorID:    actor.ID,
		Action:     audit.ActionDelete,
		TargetType: "analysis",
		TargetID:   id.String(),
	})
	return nil
}

func mapFileError(err error) error {
	switch err {
	case nil:
		return nil
	case filestore.ErrFileNotFound:
		return apperr.Wrap(apperr.NotFound, err, "file not found")
	case filestore.ErrFileTooLarge, filestore.ErrInvalidContentType, filestore.ErrMissingFileName:
		return apperr.Wrap(apperr.ValidationFailed, err, err.Error())
	default:
		return err
	}
}

// measuredAtFromReport backfills a measurement timestamp from the detected
// report date when individual rows carry none.
func measuredAtFromReport(results []*AnalysisResult, reportDate *time.Time) {
	if reportDate == nil {
		return
	}
	for _, r := range results {
		if r.MeasuredAt == nil {
			d := *reportDate
			r.MeasuredAt = &d
		}
	}
}
