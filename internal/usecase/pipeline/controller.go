package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
	"github.com/johnquangdev/meeting-minutes/internal/domain/repositories"
	"github.com/johnquangdev/meeting-minutes/pkg/ai"
	"github.com/johnquangdev/meeting-minutes/pkg/config"
	"github.com/johnquangdev/meeting-minutes/pkg/jobcontext"
)

var (
	// ErrRunActive is returned when another run holds the job
	ErrRunActive = errors.New("a run is already active for this job")
	// ErrNotFound is returned for an unknown job identifier
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when resuming a job that is DONE or FAILED
	ErrTerminal = errors.New("job is in a terminal stage")
	// ErrTranscriptNotReady is returned before transcription completed
	ErrTranscriptNotReady = errors.New("transcript not ready")

	// errStageWaiting stops a run whose stage is left resumable
	errStageWaiting = errors.New("stage waiting for a later resume")
)

// ErrorKindResumeLimit is the failure kind of a job failed after too many resumes
const ErrorKindResumeLimit = "resume_limit"

// Diarizer runs the asynchronous diarization job
type Diarizer interface {
	Submit(ctx context.Context, audioURL string) (string, error)
	Await(ctx context.Context, jobID string, maxWait time.Duration) ([]ai.SpeakerSegment, error)
}

// Transcriber transcribes one batch of segments
type Transcriber interface {
	TranscribeBatch(ctx context.Context, audioURL string, segments []ai.SpeakerSegment) ([]ai.SegmentText, error)
}

// LLM completes a single prompt
type LLM interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Normalizer produces the normalized audio artifact for a job
type Normalizer interface {
	Normalize(ctx context.Context, jobID uuid.UUID, sourceObject string) (object string, url string, err error)
}

// Renderer produces the named output documents and returns name -> object key
type Renderer interface {
	Render(ctx context.Context, pc *entities.ProcessingContext, transcript []entities.AnnotatedSegment) (map[string]string, error)
}

// URLSigner refreshes a fetchable URL for a stored object
type URLSigner interface {
	GetFileURL(ctx context.Context, objectName string) (string, error)
}

// Options bounds the pipeline's use of external services
type Options struct {
	BatchTokenBudget     int
	TokensPerSecond      int
	TranscriptionWorkers int
	ChunkTokens          int
	MergeGap             float64
	DiarizationMaxWait   time.Duration
	Retry                jobcontext.RetryPolicy
	LeaseTTL             time.Duration
	ResumeInterval       time.Duration
	MaxResumes           int
}

// promptReserve is kept free in the LLM context for instructions and documents
const promptReserve = 2000

// OptionsFromConfig derives pipeline options from configuration
func OptionsFromConfig(cfg *config.Config) Options {
	chunk := cfg.LLM.ContextTokens - cfg.LLM.MaxTokens - promptReserve
	if chunk < 1000 {
		chunk = 1000
	}
	return Options{
		BatchTokenBudget:     cfg.Pipeline.BatchTokenBudget,
		TokensPerSecond:      cfg.Pipeline.TokensPerSecond,
		TranscriptionWorkers: cfg.Pipeline.TranscriptionWorkers,
		ChunkTokens:          chunk,
		MergeGap:             cfg.Pipeline.MergeGap,
		DiarizationMaxWait:   cfg.RunPod.DiarizationMaxWait,
		Retry: jobcontext.RetryPolicy{
			MaxAttempts:     cfg.Pipeline.StageAttempts,
			InitialInterval: cfg.Pipeline.RetryInitialInterval,
			MaxInterval:     cfg.Pipeline.RetryMaxInterval,
		},
		LeaseTTL:       cfg.Pipeline.LeaseTTL,
		ResumeInterval: cfg.Pipeline.ResumeInterval,
		MaxResumes:     cfg.Pipeline.MaxResumes,
	}
}

// Collaborators groups the external services the stages call
type Collaborators struct {
	Normalizer  Normalizer
	Diarizer    Diarizer
	Transcriber Transcriber
	LLM         LLM
	Renderer    Renderer
	// Signer is optional; when set, audio URLs are re-signed before each remote call
	Signer URLSigner
}

// SubmitRequest describes an accepted upload
type SubmitRequest struct {
	SourceObject   string
	SourceFilename string
	Inputs         entities.ContextDocuments
}

// Service defines pipeline orchestration methods
type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*entities.ProcessingContext, error)
	Start(ctx context.Context, id uuid.UUID) error
	Run(ctx context.Context, id uuid.UUID) error
	Resume(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*entities.ProcessingContext, error)
	List(ctx context.Context, limit int) ([]entities.ProcessingContext, error)
	Transcript(ctx context.Context, id uuid.UUID) ([]entities.AnnotatedSegment, error)
	StartResumeWorker(ctx context.Context) error
	StopResumeWorker() error
	Shutdown(ctx context.Context) error
}

type stageFunc func(ctx context.Context, r *stageRun) error

type controller struct {
	repo   repositories.ProcessingContextRepository
	deps   Collaborators
	opts   Options
	parser *Parser
	stages map[entities.Stage]stageFunc
	logger *zap.Logger
	now    func() time.Time

	// background runs
	baseCtx    context.Context
	cancelRuns context.CancelFunc
	runs       sync.WaitGroup

	workerStopChan      chan struct{}
	workerWg            sync.WaitGroup
	isWorkerPoolRunning bool
	workerMutex         sync.Mutex
}

// NewController constructs the stage pipeline controller
func NewController(repo repositories.ProcessingContextRepository, deps Collaborators, opts Options, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TranscriptionWorkers < 1 {
		opts.TranscriptionWorkers = 1
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = jobcontext.DefaultRetryPolicy()
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 10 * time.Minute
	}
	if opts.ResumeInterval <= 0 {
		opts.ResumeInterval = time.Minute
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	c := &controller{
		repo:       repo,
		deps:       deps,
		opts:       opts,
		parser:     NewParser(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		baseCtx:    baseCtx,
		cancelRuns: cancel,
	}
	c.stages = map[entities.Stage]stageFunc{
		entities.StageNormalizing:         c.normalize,
		entities.StageDiarizing:           c.diarize,
		entities.StageTranscribing:        c.transcribe,
		entities.StageMappingSpeakers:     c.mapSpeakers,
		entities.StageDraftingReport:      c.draftReport,
		entities.StageExtractingDecisions: c.extractDecisions,
		entities.StageRendering:           c.render,
	}
	return c
}

// Submit creates the context for an accepted upload and starts its run in the background
func (c *controller) Submit(ctx context.Context, req SubmitRequest) (*entities.ProcessingContext, error) {
	if req.SourceObject == "" {
		return nil, fmt.Errorf("source object is required")
	}

	pc := entities.NewProcessingContext(req.SourceObject, req.SourceFilename, req.Inputs)
	if err := c.repo.Create(ctx, pc); err != nil {
		return nil, fmt.Errorf("failed to create processing context: %w", err)
	}

	c.logger.Info("📥 Job accepted",
		zap.String("job_id", pc.ID.String()),
		zap.String("source_object", pc.SourceObject),
	)

	// The resume worker may claim a fresh UPLOADED job first; the job is still running.
	if err := c.Start(ctx, pc.ID); err != nil && !errors.Is(err, ErrRunActive) {
		return pc, err
	}
	return pc, nil
}

// Start claims the job and runs it in the background. A second start while a run is
// active fails with ErrRunActive before any external call.
func (c *controller) Start(ctx context.Context, id uuid.UUID) error {
	return c.launch(ctx, id, false, true)
}

// Run claims the job and runs it to a stopping point on the caller's goroutine
func (c *controller) Run(ctx context.Context, id uuid.UUID) error {
	return c.launch(ctx, id, false, false)
}

// Resume restarts a non-terminal job from its last committed stage in the background
func (c *controller) Resume(ctx context.Context, id uuid.UUID) error {
	return c.launch(ctx, id, true, true)
}

func (c *controller) launch(ctx context.Context, id uuid.UUID, resume, async bool) error {
	pc, err := c.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load processing context: %w", err)
	}
	if pc == nil {
		return ErrNotFound
	}
	if pc.Stage.IsTerminal() {
		return ErrTerminal
	}

	runID := uuid.NewString()
	claimed, err := c.repo.ClaimRun(ctx, id, runID, c.opts.LeaseTTL)
	if err != nil {
		return fmt.Errorf("failed to claim run: %w", err)
	}
	if !claimed {
		return ErrRunActive
	}

	if !async {
		return c.execute(jobcontext.RunBegin(ctx, id, runID), runID, resume)
	}

	c.runs.Add(1)
	go func() {
		defer c.runs.Done()
		runCtx := jobcontext.RunBegin(c.baseCtx, id, runID)
		if err := c.execute(runCtx, runID, resume); err != nil && !errors.Is(err, errStageWaiting) {
			c.logger.Warn("run stopped", append(jobcontext.Fields(runCtx), zap.Error(err))...)
		}
	}()
	return nil
}

// execute drives stages until DONE, FAILED, a waiting stage, or cancellation.
// The caller holds the run lease; it is released on return.
func (c *controller) execute(parent context.Context, runID string, resume bool) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	id, _ := jobcontext.GetJobID(ctx)
	defer c.release(id, runID)

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go c.heartbeat(ctx, cancel, id, runID, heartbeatDone)

	pc, err := c.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load processing context: %w", err)
	}
	if pc == nil {
		return ErrNotFound
	}

	if resume {
		// Only a stage parked by a timeout counts against the limit; crash recovery does not.
		waiting := pc.StageRecords[pc.Stage].Status == entities.StageStatusWaiting
		if waiting {
			pc.Resumes++
		}
		c.logger.Info("🔁 Resuming job", append(jobcontext.Fields(ctx),
			zap.String("stage", string(pc.Stage)),
			zap.Bool("waiting", waiting),
			zap.Int("resumes", pc.Resumes),
		)...)
		if waiting && c.opts.MaxResumes > 0 && pc.Resumes > c.opts.MaxResumes {
			reason := fmt.Sprintf("resume limit of %d reached", c.opts.MaxResumes)
			if last := lastError(pc); last != "" {
				reason += ": " + last
			}
			if err := pc.Fail(ErrorKindResumeLimit, reason, c.now()); err != nil {
				return err
			}
			return c.repo.Commit(ctx, pc, runID)
		}
		if waiting {
			if err := c.repo.Commit(ctx, pc, runID); err != nil {
				return err
			}
		}
	}

	if pc.Stage == entities.StageUploaded {
		if err := pc.Advance(c.now()); err != nil {
			return err
		}
		if err := c.repo.Commit(ctx, pc, runID); err != nil {
			return err
		}
	}

	for pc.Stage.Executes() {
		next, err := c.runStage(ctx, pc, runID)
		if err != nil {
			return err
		}
		pc = next
	}

	c.logger.Info("✅ Job finished", append(jobcontext.Fields(ctx), zap.String("stage", string(pc.Stage)))...)
	return nil
}

// stageRun is the state of one stage execution. Stages write only to work; the
// controller commits work on success and discards it otherwise.
type stageRun struct {
	runID     string
	committed *entities.ProcessingContext
	work      *entities.ProcessingContext
	repo      repositories.ProcessingContextRepository
}

// checkpoint persists a value that must survive a failed or interrupted stage
// (a remote job id) without committing the stage's output.
func (r *stageRun) checkpoint(ctx context.Context, apply func(pc *entities.ProcessingContext)) error {
	apply(r.committed)
	apply(r.work)
	return r.repo.Commit(ctx, r.committed, r.runID)
}

func (c *controller) runStage(ctx context.Context, pc *entities.ProcessingContext, runID string) (*entities.ProcessingContext, error) {
	stage := pc.Stage
	fn, ok := c.stages[stage]
	if !ok {
		return nil, fmt.Errorf("no handler for stage %s", stage)
	}
	ctx = jobcontext.WithStage(ctx, string(stage))
	logFields := jobcontext.Fields(ctx)

	pc.BeginStage(c.now())
	if err := c.repo.Commit(ctx, pc, runID); err != nil {
		return nil, err
	}

	c.logger.Info("▶️ Stage started", append(logFields, zap.Int("attempt", pc.StageRecords[stage].Attempts))...)
	started := time.Now()

	r := &stageRun{runID: runID, committed: pc, work: pc.Clone(), repo: c.repo}
	err := fn(ctx, r)

	switch {
	case err == nil:
		if err := r.work.Advance(c.now()); err != nil {
			return nil, err
		}
		if err := c.repo.Commit(ctx, r.work, runID); err != nil {
			return nil, err
		}
		c.logger.Info("✅ Stage completed", append(logFields,
			zap.Duration("duration", time.Since(started)),
			zap.String("next_stage", string(r.work.Stage)),
		)...)
		return r.work, nil

	case ctx.Err() != nil:
		c.logger.Warn("⏹️ Stage interrupted", append(logFields, zap.Error(err))...)
		return nil, ctx.Err()

	case apperrors.IsTimeout(err):
		pc.MarkWaiting(apperrors.Kind(err), apperrors.Reason(err), c.now())
		if cerr := c.repo.Commit(ctx, pc, runID); cerr != nil {
			return nil, cerr
		}
		c.logger.Warn("⏳ Stage waiting for resume", append(logFields, zap.Error(err))...)
		return nil, errStageWaiting

	default:
		if ferr := pc.Fail(apperrors.Kind(err), apperrors.Reason(err), c.now()); ferr != nil {
			return nil, ferr
		}
		if cerr := c.repo.Commit(ctx, pc, runID); cerr != nil {
			return nil, cerr
		}
		c.logger.Error("❌ Stage failed", append(logFields,
			zap.String("error_kind", apperrors.Kind(err)),
			zap.Error(err),
		)...)
		return nil, err
	}
}

// heartbeat renews the run lease until done; losing the lease cancels the run
func (c *controller) heartbeat(ctx context.Context, cancel context.CancelFunc, id uuid.UUID, runID string, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.LeaseTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := c.repo.RenewRun(ctx, id, runID, c.opts.LeaseTTL)
			if errors.Is(err, repositories.ErrLeaseLost) {
				c.logger.Error("run lease lost, stopping run", jobcontext.Fields(ctx)...)
				cancel()
				return
			}
			if err != nil {
				c.logger.Warn("failed to renew run lease", append(jobcontext.Fields(ctx), zap.Error(err))...)
			}
		}
	}
}

func (c *controller) release(id uuid.UUID, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.repo.ReleaseRun(ctx, id, runID); err != nil && !errors.Is(err, repositories.ErrLeaseLost) {
		c.logger.Warn("failed to release run lease",
			zap.String("job_id", id.String()),
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}

// Get returns the persisted context
func (c *controller) Get(ctx context.Context, id uuid.UUID) (*entities.ProcessingContext, error) {
	pc, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if pc == nil {
		return nil, ErrNotFound
	}
	return pc, nil
}

// List returns the job history, newest first
func (c *controller) List(ctx context.Context, limit int) ([]entities.ProcessingContext, error) {
	return c.repo.List(ctx, limit)
}

// Transcript assembles the annotated transcript from persisted stage outputs
func (c *controller) Transcript(ctx context.Context, id uuid.UUID) ([]entities.AnnotatedSegment, error) {
	pc, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if pc.StageRecords[entities.StageTranscribing].Status != entities.StageStatusCompleted {
		return nil, ErrTranscriptNotReady
	}
	return Assemble(pc.TranscribedSegments, pc.SpeakerMapping), nil
}

// StartResumeWorker starts the background worker that resumes abandoned and waiting jobs
func (c *controller) StartResumeWorker(ctx context.Context) error {
	c.workerMutex.Lock()
	defer c.workerMutex.Unlock()

	if c.isWorkerPoolRunning {
		return fmt.Errorf("resume worker already running")
	}

	c.workerStopChan = make(chan struct{})
	c.isWorkerPoolRunning = true

	c.workerWg.Add(1)
	go c.resumeWorker(ctx)

	c.logger.Info("🚀 Resume worker started",
		zap.Duration("interval", c.opts.ResumeInterval),
		zap.Int("max_resumes", c.opts.MaxResumes),
	)
	if c.opts.MaxResumes == 0 {
		c.logger.Warn("PIPELINE_MAX_RESUMES is 0: waiting jobs are resumed without limit")
	}
	return nil
}

// StopResumeWorker stops the resume worker
func (c *controller) StopResumeWorker() error {
	c.workerMutex.Lock()
	defer c.workerMutex.Unlock()

	if !c.isWorkerPoolRunning {
		return fmt.Errorf("resume worker not running")
	}

	close(c.workerStopChan)
	c.workerWg.Wait()
	c.isWorkerPoolRunning = false

	c.logger.Info("🛑 Resume worker stopped")
	return nil
}

// Shutdown cancels background runs and waits for them to leave their contexts at the
// last committed stage
func (c *controller) Shutdown(ctx context.Context) error {
	c.cancelRuns()

	done := make(chan struct{})
	go func() {
		c.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const resumeBatchSize = 20

func (c *controller) resumeWorker(ctx context.Context) {
	defer c.workerWg.Done()

	ticker := time.NewTicker(c.opts.ResumeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.workerStopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.resumePending(ctx)
		}
	}
}

func (c *controller) resumePending(ctx context.Context) {
	pending, err := c.repo.ListResumable(ctx, resumeBatchSize)
	if err != nil {
		c.logger.Error("❌ Failed to list resumable jobs", zap.Error(err))
		return
	}

	for _, pc := range pending {
		err := c.Resume(ctx, pc.ID)
		switch {
		case err == nil:
		case errors.Is(err, ErrRunActive), errors.Is(err, ErrTerminal):
			// picked up elsewhere since listing
		default:
			c.logger.Warn("failed to resume job",
				zap.String("job_id", pc.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func lastError(pc *entities.ProcessingContext) string {
	if n := len(pc.ErrorHistory); n > 0 {
		return pc.ErrorHistory[n-1].Reason
	}
	return ""
}
