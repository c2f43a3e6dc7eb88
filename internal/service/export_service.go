package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/export"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
	"github.com/noah-isme/tutorhub-api/pkg/storage"
)

// JobTypePaymentExport renders a payment statement in the background.
const JobTypePaymentExport = "payments.export"

type paymentExportSource interface {
	ListForExport(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentView, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(format export.Format, data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportDownload is an opened export file ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ExportService renders payment statements asynchronously and serves them
// behind signed download links. Job state is kept per process because the
// rendered files live on this node's disk.
type ExportService struct {
	payments paymentExportSource
	storage  fileStorage
	renderer datasetRenderer
	signer   *storage.SignedURLSigner
	queue    jobEnqueuer
	logger   *zap.Logger
	cfg      ExportConfig
	now      func() time.Time

	mu      sync.RWMutex
	exports map[string]*models.ExportJob
}

// NewExportService constructs an ExportService. renderer defaults to CSV + PDF.
func NewExportService(payments paymentExportSource, store fileStorage, signer *storage.SignedURLSigner, queue jobEnqueuer, renderer datasetRenderer, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if renderer == nil {
		renderer = export.NewRenderer()
	}
	return &ExportService{
		payments: payments,
		storage:  store,
		renderer: renderer,
		signer:   signer,
		queue:    queue,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		exports:  make(map[string]*models.ExportJob),
	}
}

// RequestPaymentExport queues a statement render and returns the queued job.
func (s *ExportService) RequestPaymentExport(ctx context.Context, requestedBy, format string, filter models.PaymentFilter) (*models.ExportJob, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceDisabled, "exports are not configured")
	}
	job := &models.ExportJob{
		ID:          uuid.NewString(),
		Format:      string(parsed),
		Status:      models.ExportQueued,
		RequestedBy: requestedBy,
		Filter:      filter,
		CreatedAt:   s.now(),
	}
	s.store(job)
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: JobTypePaymentExport, Payload: job.ID}); err != nil {
		s.update(job.ID, func(j *models.ExportJob) {
			j.Status = models.ExportFailed
			j.Error = "queue unavailable"
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export")
	}
	return s.snapshot(job.ID), nil
}

// Status returns the current state of an export.
func (s *ExportService) Status(ctx context.Context, id string) (*models.ExportJob, error) {
	job := s.snapshot(id)
	if job == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	return job, nil
}

// HandleExportJob is the job queue handler for JobTypePaymentExport.
func (s *ExportService) HandleExportJob(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("export job %s: unexpected payload %T", job.ID, job.Payload)
	}
	current := s.snapshot(id)
	if current == nil {
		return fmt.Errorf("export job %s: unknown export", id)
	}
	s.update(id, func(j *models.ExportJob) { j.Status = models.ExportProcessing })

	url, expiresAt, key, err := s.generate(ctx, current)
	if err != nil {
		s.update(id, func(j *models.ExportJob) {
			j.Status = models.ExportFailed
			j.Error = err.Error()
		})
		return err
	}
	finished := s.now()
	s.update(id, func(j *models.ExportJob) {
		j.Status = models.ExportFinished
		j.StorageKey = key
		j.DownloadURL = url
		j.ExpiresAt = &expiresAt
		j.FinishedAt = &finished
		j.Error = ""
	})
	s.logger.Info("payment export finished", zap.String("export_id", id), zap.String("format", current.Format))
	return nil
}

// Open validates a download token and opens the referenced file.
func (s *ExportService) Open(ctx context.Context, token string) (*ExportDownload, error) {
	exportID, key, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}
	file, err := s.storage.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	format := export.FormatCSV
	if strings.HasSuffix(key, "."+string(export.FormatPDF)) {
		format = export.FormatPDF
	}
	return &ExportDownload{
		File:        file,
		Filename:    fmt.Sprintf("payments_%s.%s", exportID, format),
		ContentType: format.ContentType(),
	}, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0)
// and forgets the exports that referenced them.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	removed, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return nil, err
	}
	gone := make(map[string]struct{}, len(removed))
	for _, key := range removed {
		gone[key] = struct{}{}
	}
	s.mu.Lock()
	for id, job := range s.exports {
		if _, ok := gone[job.StorageKey]; ok {
			delete(s.exports, id)
		}
	}
	s.mu.Unlock()
	return removed, nil
}

func (s *ExportService) generate(ctx context.Context, job *models.ExportJob) (string, time.Time, string, error) {
	rows, err := s.payments.ListForExport(ctx, job.Filter)
	if err != nil {
		return "", time.Time{}, "", err
	}
	payload, err := s.renderer.Render(export.Format(job.Format), paymentDataset(rows, s.now()))
	if err != nil {
		return "", time.Time{}, "", err
	}
	key, err := s.storage.Save(fmt.Sprintf("payments_%s_%s.%s", job.ID, job.CreatedAt.Format("20060102_150405"), job.Format), payload)
	if err != nil {
		return "", time.Time{}, "", err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, key)
	if err != nil {
		return "", time.Time{}, "", err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/admin/exports/download/%s", prefix, token), expiresAt, key, nil
}

func paymentDataset(rows []models.PaymentView, generatedAt time.Time) export.Dataset {
	headers := []string{"Date", "Payer", "Email", "Amount", "Currency", "Tokens", "Status"}
	data := make([]map[string]string, 0, len(rows))
	var completed int64
	for _, row := range rows {
		if row.Status == models.PaymentCompleted {
			completed += row.AmountCents
		}
		data = append(data, map[string]string{
			"Date":     row.CreatedAt.UTC().Format("2006-01-02 15:04"),
			"Payer":    row.UserName,
			"Email":    row.UserEmail,
			"Amount":   formatCents(row.AmountCents),
			"Currency": strings.ToUpper(row.Currency),
			"Tokens":   fmt.Sprintf("%d", row.Tokens),
			"Status":   string(row.Status),
		})
	}
	return export.Dataset{
		Title:   "Payment statement",
		Headers: headers,
		Rows:    data,
		Footer:  fmt.Sprintf("%d payments, %s completed. Generated %s", len(rows), formatCents(completed), generatedAt.Format(time.RFC3339)),
	}
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func (s *ExportService) store(job *models.ExportJob) {
	s.mu.Lock()
	s.exports[job.ID] = job
	s.mu.Unlock()
}

func (s *ExportService) update(id string, fn func(*models.ExportJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.exports[id]; ok {
		fn(job)
	}
}

func (s *ExportService) snapshot(id string) *models.ExportJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.exports[id]
	if !ok {
		return nil
	}
	cp := *job
	return &cp
}
