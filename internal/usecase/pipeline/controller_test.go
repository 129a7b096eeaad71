package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
	"github.com/johnquangdev/meeting-minutes/internal/infrastructure/cache"
	"github.com/johnquangdev/meeting-minutes/pkg/ai"
	"github.com/johnquangdev/meeting-minutes/pkg/jobcontext"
)

type fakeNormalizer struct{ calls int32 }

func (f *fakeNormalizer) Normalize(ctx context.Context, jobID uuid.UUID, sourceObject string) (string, string, error) {
	atomic.AddInt32(&f.calls, 1)
	return "normalized/" + jobID.String() + ".wav", "http://storage/normalized.wav", nil
}

type fakeDiarizer struct {
	submits int32
	awaits  int32
	await   func(call int32) ([]ai.SpeakerSegment, error)
}

func (f *fakeDiarizer) Submit(ctx context.Context, audioURL string) (string, error) {
	n := atomic.AddInt32(&f.submits, 1)
	return fmt.Sprintf("remote-%d", n), nil
}

func (f *fakeDiarizer) Await(ctx context.Context, jobID string, maxWait time.Duration) ([]ai.SpeakerSegment, error) {
	n := atomic.AddInt32(&f.awaits, 1)
	if f.await != nil {
		return f.await(n)
	}
	return meetingSegments(), nil
}

type fakeTranscriber struct {
	calls int32
	fn    func(call int32, segments []ai.SpeakerSegment) ([]ai.SegmentText, error)
}

func (f *fakeTranscriber) TranscribeBatch(ctx context.Context, audioURL string, segments []ai.SpeakerSegment) ([]ai.SegmentText, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.fn != nil {
		return f.fn(n, segments)
	}
	return echoTranscription(segments), nil
}

type fakeLLM struct {
	mu       sync.Mutex
	calls    []string
	mapping  string
	report   string
	decision string
	onCall   func(prompt string) error
	reply    func(prompt string) string
}

func (f *fakeLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, prompt)
	f.mu.Unlock()

	if f.onCall != nil {
		if err := f.onCall(prompt); err != nil {
			return "", err
		}
	}
	if f.reply != nil {
		if out := f.reply(prompt); out != "" {
			return out, nil
		}
	}
	switch {
	case strings.Contains(prompt, "Speaker labels:"):
		return f.mapping, nil
	case strings.Contains(prompt, `{"decisions"`):
		return f.decision, nil
	default:
		return f.report, nil
	}
}

func (f *fakeLLM) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLLM) prompts(marker string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.calls {
		if strings.Contains(p, marker) {
			out = append(out, p)
		}
	}
	return out
}

type fakeRenderer struct{ calls int32 }

func (f *fakeRenderer) Render(ctx context.Context, pc *entities.ProcessingContext, transcript []entities.AnnotatedSegment) (map[string]string, error) {
	atomic.AddInt32(&f.calls, 1)
	return map[string]string{"minutes_txt": "documents/" + pc.ID.String() + "/20240115_Minutes.txt"}, nil
}

func meetingSegments() []ai.SpeakerSegment {
	return []ai.SpeakerSegment{
		{Start: 0, End: 5, Speaker: "SPEAKER_00"},
		{Start: 5, End: 9, Speaker: "SPEAKER_01"},
		{Start: 9, End: 14, Speaker: "SPEAKER_00"},
		{Start: 14, End: 20, Speaker: "SPEAKER_01"},
		{Start: 20, End: 23, Speaker: "SPEAKER_00"},
	}
}

func echoTranscription(segments []ai.SpeakerSegment) []ai.SegmentText {
	out := make([]ai.SegmentText, len(segments))
	for i, s := range segments {
		out[i] = ai.SegmentText{Start: s.Start, End: s.End, Speaker: s.Speaker, Text: fmt.Sprintf("said at %.0f", s.Start)}
	}
	return out
}

type harness struct {
	repo        *cache.MemoryContextRepository
	normalizer  *fakeNormalizer
	diarizer    *fakeDiarizer
	transcriber *fakeTranscriber
	llm         *fakeLLM
	renderer    *fakeRenderer
	opts        Options
}

func newHarness(t *testing.T) *harness {
	repo := cache.NewMemoryContextRepository()
	t.Cleanup(repo.Close)

	return &harness{
		repo:        repo,
		normalizer:  &fakeNormalizer{},
		diarizer:    &fakeDiarizer{},
		transcriber: &fakeTranscriber{},
		llm: &fakeLLM{
			mapping:  "```json\n{\"SPEAKER_00\": \"Alice\"}\n```",
			report:   "Budget: the budget was discussed.",
			decision: `{"decisions": [{"text": "Approve the budget", "proposer": "Alice", "outcome": "adopted", "timestamp": "00:00:10"}]}`,
		},
		renderer: &fakeRenderer{},
		opts: Options{
			BatchTokenBudget:     1000,
			TokensPerSecond:      100,
			TranscriptionWorkers: 2,
			ChunkTokens:          10000,
			DiarizationMaxWait:   time.Second,
			Retry:                jobcontext.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
			LeaseTTL:             time.Minute,
			ResumeInterval:       10 * time.Millisecond,
		},
	}
}

func (h *harness) controller(t *testing.T) *controller {
	svc := NewController(h.repo, Collaborators{
		Normalizer:  h.normalizer,
		Diarizer:    h.diarizer,
		Transcriber: h.transcriber,
		LLM:         h.llm,
		Renderer:    h.renderer,
	}, h.opts, zaptest.NewLogger(t))
	return svc.(*controller)
}

func (h *harness) newJob(t *testing.T) uuid.UUID {
	pc := entities.NewProcessingContext("uploads/meeting.mp3", "meeting.mp3", entities.ContextDocuments{
		Chair:       "Alice",
		MeetingDate: "2024-01-15",
	})
	require.NoError(t, h.repo.Create(context.Background(), pc))
	return pc.ID
}

func (h *harness) get(t *testing.T, id uuid.UUID) *entities.ProcessingContext {
	pc, err := h.repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, pc)
	return pc
}

func TestRunCompletesAllStages(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t)
	id := h.newJob(t)

	require.NoError(t, c.Run(context.Background(), id))

	pc := h.get(t, id)
	assert.Equal(t, entities.StageDone, pc.Stage)
	assert.NotNil(t, pc.CompletedAt)
	assert.Empty(t, pc.ActiveRunID, "lease released after the run")

	for _, stage := range entities.Stages() {
		assert.Equal(t, entities.StageStatusCompleted, pc.StageRecords[stage].Status, stage)
	}

	assert.Equal(t, "remote-1", pc.DiarizationJobID)
	require.Len(t, pc.TranscribedSegments, 5)
	for i, seg := range meetingSegments() {
		assert.Equal(t, seg.Start, pc.TranscribedSegments[i].Start)
		assert.Equal(t, fmt.Sprintf("said at %.0f", seg.Start), pc.TranscribedSegments[i].Text)
	}
	assert.Equal(t, entities.SpeakerMapping{"SPEAKER_00": "Alice"}, pc.SpeakerMapping)
	assert.Equal(t, "Budget: the budget was discussed.", pc.PreReport)
	require.Len(t, pc.Decisions, 1)
	assert.Equal(t, entities.OutcomeAdopted, pc.Decisions[0].Outcome)
	assert.Len(t, pc.DocumentObjects(), 1)

	assert.EqualValues(t, 1, h.normalizer.calls)
	assert.EqualValues(t, 1, h.diarizer.submits)
	assert.EqualValues(t, 3, h.transcriber.calls, "5 segments of 3-6s at a 1000 token budget make 3 batches")
	assert.Equal(t, 3, h.llm.count())
	assert.EqualValues(t, 1, h.renderer.calls)

	transcript, err := c.Transcript(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", transcript[0].Speaker)
	assert.Equal(t, "SPEAKER_01", transcript[1].Speaker)
}

func TestParallelBatchesMergeInOriginalOrder(t *testing.T) {
	h := newHarness(t)
	h.opts.BatchTokenBudget = 1
	h.opts.TranscriptionWorkers = 4
	h.transcriber.fn = func(call int32, segments []ai.SpeakerSegment) ([]ai.SegmentText, error) {
		// Earlier segments finish last.
		time.Sleep(time.Duration(30-segments[0].Start) * time.Millisecond)
		return echoTranscription(segments), nil
	}
	c := h.controller(t)
	id := h.newJob(t)

	require.NoError(t, c.Run(context.Background(), id))

	pc := h.get(t, id)
	require.Len(t, pc.TranscribedSegments, 5)
	for i, seg := range meetingSegments() {
		assert.Equal(t, seg.Start, pc.TranscribedSegments[i].Start)
		assert.Equal(t, seg.Speaker, pc.TranscribedSegments[i].SpeakerLabel)
	}
}

func TestDiarizationTimeoutLeavesStageResumable(t *testing.T) {
	h := newHarness(t)
	h.diarizer.await = func(call int32) ([]ai.SpeakerSegment, error) {
		if call == 1 {
			return nil, &apperrors.TimeoutError{Service: "diarization", JobID: "remote-1", Waited: time.Second}
		}
		return meetingSegments(), nil
	}
	c := h.controller(t)
	id := h.newJob(t)

	err := c.Run(context.Background(), id)
	require.ErrorIs(t, err, errStageWaiting)

	pc := h.get(t, id)
	assert.Equal(t, entities.StageDiarizing, pc.Stage)
	assert.Equal(t, entities.StageStatusWaiting, pc.StageRecords[entities.StageDiarizing].Status)
	assert.Equal(t, "timeout", pc.StageRecords[entities.StageDiarizing].ErrorKind)
	assert.Equal(t, "remote-1", pc.DiarizationJobID, "remote job id checkpointed before waiting")
	assert.Empty(t, pc.DiarizationSegments)
	assert.Zero(t, h.transcriber.calls)

	require.NoError(t, c.launch(context.Background(), id, true, false))

	pc = h.get(t, id)
	assert.Equal(t, entities.StageDone, pc.Stage)
	assert.Equal(t, 1, pc.Resumes)
	assert.EqualValues(t, 1, h.diarizer.submits, "resume re-polls the checkpointed job")
	assert.EqualValues(t, 2, h.diarizer.awaits)
	assert.EqualValues(t, 1, h.normalizer.calls)
}

func TestDiarizationFailureMovesToFailed(t *testing.T) {
	h := newHarness(t)
	h.diarizer.await = func(int32) ([]ai.SpeakerSegment, error) {
		return nil, &apperrors.FailureError{Service: "diarization", JobID: "remote-1", Message: "audio file is corrupt"}
	}
	c := h.controller(t)
	id := h.newJob(t)

	err := c.Run(context.Background(), id)
	require.Error(t, err)

	pc := h.get(t, id)
	assert.Equal(t, entities.StageFailed, pc.Stage)
	assert.Equal(t, entities.StageDiarizing, pc.FailedStage)
	assert.Contains(t, pc.FailureReason, "audio file is corrupt")
	assert.Equal(t, entities.StageStatusFailed, pc.StageRecords[entities.StageDiarizing].Status)
	assert.EqualValues(t, 1, h.diarizer.awaits, "failures are not retried")
	assert.Zero(t, h.transcriber.calls)

	require.ErrorIs(t, c.Resume(context.Background(), id), ErrTerminal)
}

func TestTranscriptionCountMismatchFailsRun(t *testing.T) {
	h := newHarness(t)
	h.opts.BatchTokenBudget = 100000
	h.transcriber.fn = func(call int32, segments []ai.SpeakerSegment) ([]ai.SegmentText, error) {
		return echoTranscription(segments)[:len(segments)-1], nil
	}
	c := h.controller(t)
	id := h.newJob(t)

	err := c.Run(context.Background(), id)
	require.Error(t, err)
	var assembly *apperrors.AssemblyError
	require.ErrorAs(t, err, &assembly)

	pc := h.get(t, id)
	assert.Equal(t, entities.StageFailed, pc.Stage)
	assert.Equal(t, entities.StageTranscribing, pc.FailedStage)
	assert.Empty(t, pc.TranscribedSegments, "no partial output committed")
	require.NotEmpty(t, pc.ErrorHistory)
	assert.Equal(t, "assembly", pc.ErrorHistory[len(pc.ErrorHistory)-1].Kind)
	assert.Contains(t, pc.FailureReason, "returned 4 segments, expected 5")
}

func TestResumeAfterCrashSkipsCompletedStages(t *testing.T) {
	h := newHarness(t)
	ctx, crash := context.WithCancel(context.Background())
	var crashed int32
	h.llm.onCall = func(prompt string) error {
		if strings.Contains(prompt, "pre-report") && atomic.CompareAndSwapInt32(&crashed, 0, 1) {
			crash()
			return context.Canceled
		}
		return nil
	}
	c := h.controller(t)
	id := h.newJob(t)

	err := c.Run(ctx, id)
	require.ErrorIs(t, err, context.Canceled)

	pc := h.get(t, id)
	assert.Equal(t, entities.StageDraftingReport, pc.Stage)
	assert.Empty(t, pc.PreReport)
	assert.Empty(t, pc.ActiveRunID)

	require.NoError(t, c.launch(context.Background(), id, true, false))

	pc = h.get(t, id)
	assert.Equal(t, entities.StageDone, pc.Stage)
	assert.EqualValues(t, 1, h.normalizer.calls)
	assert.EqualValues(t, 1, h.diarizer.submits)
	assert.EqualValues(t, 1, h.diarizer.awaits)
	assert.EqualValues(t, 3, h.transcriber.calls)
	// mapping once, report twice (crashed + resumed), decisions once
	assert.Equal(t, 4, h.llm.count())
	assert.Equal(t, 2, pc.StageRecords[entities.StageDraftingReport].Attempts)
	assert.Equal(t, 1, pc.StageRecords[entities.StageMappingSpeakers].Attempts)
}

func TestSecondStartIsRejectedWithoutExternalCalls(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t)
	id := h.newJob(t)

	claimed, err := h.repo.ClaimRun(context.Background(), id, "other-run", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	require.ErrorIs(t, c.Start(context.Background(), id), ErrRunActive)
	require.ErrorIs(t, c.Run(context.Background(), id), ErrRunActive)

	assert.Zero(t, h.normalizer.calls)
	assert.Zero(t, h.diarizer.submits)
	assert.Zero(t, h.llm.count())
	assert.Equal(t, entities.StageUploaded, h.get(t, id).Stage)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	h := newHarness(t)
	h.opts.BatchTokenBudget = 100000
	h.transcriber.fn = func(call int32, segments []ai.SpeakerSegment) ([]ai.SegmentText, error) {
		if call == 1 {
			return nil, &apperrors.TransientError{Service: "transcription", Message: "status 503"}
		}
		return echoTranscription(segments), nil
	}
	c := h.controller(t)
	id := h.newJob(t)

	require.NoError(t, c.Run(context.Background(), id))
	assert.EqualValues(t, 2, h.transcriber.calls)
	assert.Equal(t, entities.StageDone, h.get(t, id).Stage)
}

func TestSubmissionErrorsAreNotRetried(t *testing.T) {
	h := newHarness(t)
	h.llm.onCall = func(string) error {
		return &apperrors.SubmissionError{Service: "llm", StatusCode: 401, Message: "invalid api key"}
	}
	c := h.controller(t)
	id := h.newJob(t)

	require.Error(t, c.Run(context.Background(), id))
	pc := h.get(t, id)
	assert.Equal(t, entities.StageFailed, pc.Stage)
	assert.Equal(t, entities.StageMappingSpeakers, pc.FailedStage)
	assert.Equal(t, 1, h.llm.count())
}

func TestUnparseableMappingKeepsRawLabels(t *testing.T) {
	h := newHarness(t)
	h.llm.mapping = "I cannot identify the speakers."
	c := h.controller(t)
	id := h.newJob(t)

	require.NoError(t, c.Run(context.Background(), id))

	pc := h.get(t, id)
	assert.Equal(t, entities.StageDone, pc.Stage)
	assert.Empty(t, pc.SpeakerMapping)

	transcript, err := c.Transcript(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "SPEAKER_00", transcript[0].Speaker)
}

func TestSpeakerMappingSeesLateSpeakers(t *testing.T) {
	h := newHarness(t)
	h.opts.ChunkTokens = 500
	h.opts.BatchTokenBudget = 1000000
	var diarized []ai.SpeakerSegment
	for i := 0; i < 20; i++ {
		diarized = append(diarized, ai.SpeakerSegment{Start: float64(i * 15), End: float64(i*15 + 15), Speaker: fmt.Sprintf("SPEAKER_0%d", i%2)})
	}
	diarized = append(diarized, ai.SpeakerSegment{Start: 300, End: 305, Speaker: "SPEAKER_02"})
	h.diarizer.await = func(int32) ([]ai.SpeakerSegment, error) { return diarized, nil }
	h.transcriber.fn = func(_ int32, segments []ai.SpeakerSegment) ([]ai.SegmentText, error) {
		out := echoTranscription(segments)
		for i := range out {
			if out[i].Speaker == "SPEAKER_02" {
				out[i].Text = "Hello, I am Carol, the treasurer."
			} else {
				out[i].Text = strings.Repeat("the budget was discussed at length ", 10)
			}
		}
		return out, nil
	}
	h.llm.mapping = `{"SPEAKER_00": "Alice", "SPEAKER_02": "Carol"}`
	c := h.controller(t)
	id := h.newJob(t)

	require.NoError(t, c.Run(context.Background(), id))

	prompts := h.llm.prompts("Speaker labels:")
	require.Len(t, prompts, 1, "one mapping call")
	assert.Contains(t, prompts[0], "I am Carol")
	assert.Contains(t, prompts[0], "SPEAKER_01")
	assert.Equal(t, "Carol", h.get(t, id).SpeakerMapping["SPEAKER_02"])
}

func TestReportAndDecisionsCoverEveryChunk(t *testing.T) {
	h := newHarness(t)
	h.opts.ChunkTokens = 500
	h.transcriber.fn = func(_ int32, segments []ai.SpeakerSegment) ([]ai.SegmentText, error) {
		out := echoTranscription(segments)
		for i := range out {
			out[i].Text += " " + strings.Repeat("discussion ", 200)
		}
		return out, nil
	}
	h.llm.reply = func(prompt string) string {
		part := 0
		for k := 1; k <= 5; k++ {
			if strings.Contains(prompt, fmt.Sprintf("part %d of 5", k)) {
				part = k
			}
		}
		switch {
		case part == 0:
			return ""
		case !strings.Contains(prompt, `{"decisions"`):
			return fmt.Sprintf("Section %d.", part)
		case part == 1:
			return `{"decisions": [{"text": "Approve the budget", "outcome": "deferred"}]}`
		case part == 2:
			return "The model could not answer."
		case part == 3:
			return `{"decisions": [{"text": "approve the budget.", "proposer": "Bob", "outcome": "adopted"}, {"text": "Hire a treasurer", "outcome": "rejected"}]}`
		default:
			return `{"decisions": []}`
		}
	}
	c := h.controller(t)
	id := h.newJob(t)

	require.NoError(t, c.Run(context.Background(), id))

	assert.Len(t, h.llm.prompts("Write the pre-report"), 5)
	assert.Len(t, h.llm.prompts(`{"decisions"`), 5)

	pc := h.get(t, id)
	assert.Equal(t, entities.StageDone, pc.Stage)
	assert.Equal(t, "Section 1.\n\nSection 2.\n\nSection 3.\n\nSection 4.\n\nSection 5.", pc.PreReport)
	assert.Equal(t, []entities.Decision{
		{Text: "Approve the budget", Proposer: "Bob", Outcome: entities.OutcomeAdopted},
		{Text: "Hire a treasurer", Outcome: entities.OutcomeRejected},
	}, pc.Decisions, "duplicates merged across chunks, unparseable chunk skipped")
}

func TestEmptyDiarizationSkipsLLM(t *testing.T) {
	h := newHarness(t)
	h.diarizer.await = func(int32) ([]ai.SpeakerSegment, error) { return nil, nil }
	c := h.controller(t)
	id := h.newJob(t)

	require.NoError(t, c.Run(context.Background(), id))
	pc := h.get(t, id)
	assert.Equal(t, entities.StageDone, pc.Stage)
	assert.Zero(t, h.transcriber.calls)
	assert.Zero(t, h.llm.count())
	assert.EqualValues(t, 1, h.renderer.calls)
}

func TestResumeLimitFailsJob(t *testing.T) {
	h := newHarness(t)
	h.opts.MaxResumes = 1
	h.diarizer.await = func(int32) ([]ai.SpeakerSegment, error) {
		return nil, &apperrors.TimeoutError{Service: "diarization", JobID: "remote-1", Waited: time.Second}
	}
	c := h.controller(t)
	id := h.newJob(t)

	require.ErrorIs(t, c.Run(context.Background(), id), errStageWaiting)
	require.ErrorIs(t, c.launch(context.Background(), id, true, false), errStageWaiting)
	require.NoError(t, c.launch(context.Background(), id, true, false))

	pc := h.get(t, id)
	assert.Equal(t, entities.StageFailed, pc.Stage)
	assert.Equal(t, entities.StageDiarizing, pc.FailedStage)
	assert.Contains(t, pc.FailureReason, "resume limit of 1 reached")
	assert.Equal(t, ErrorKindResumeLimit, pc.StageRecords[entities.StageDiarizing].ErrorKind)
	assert.EqualValues(t, 2, h.diarizer.awaits)
}

func TestCrashRecoveryDoesNotCountAgainstResumeLimit(t *testing.T) {
	h := newHarness(t)
	h.opts.MaxResumes = 1
	var (
		crash   context.CancelFunc
		reports int32
	)
	h.llm.onCall = func(prompt string) error {
		if strings.Contains(prompt, "pre-report") && atomic.AddInt32(&reports, 1) <= 2 {
			crash()
			return context.Canceled
		}
		return nil
	}
	c := h.controller(t)
	id := h.newJob(t)

	ctx, cancel := context.WithCancel(context.Background())
	crash = cancel
	require.ErrorIs(t, c.Run(ctx, id), context.Canceled)

	ctx, cancel = context.WithCancel(context.Background())
	crash = cancel
	require.ErrorIs(t, c.launch(ctx, id, true, false), context.Canceled)

	require.NoError(t, c.launch(context.Background(), id, true, false))

	pc := h.get(t, id)
	assert.Equal(t, entities.StageDone, pc.Stage)
	assert.Zero(t, pc.Resumes)
	assert.Equal(t, 3, pc.StageRecords[entities.StageDraftingReport].Attempts)
}

func TestSubmitRunsInBackground(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t)

	pc, err := c.Submit(context.Background(), SubmitRequest{SourceObject: "uploads/a.wav", SourceFilename: "a.wav"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := c.Get(context.Background(), pc.ID)
		return err == nil && got.Stage == entities.StageDone
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Shutdown(context.Background()))
}

// claimOnCreateRepo claims the run as soon as the job exists, as the resume worker
// can between Create and Start.
type claimOnCreateRepo struct {
	*cache.MemoryContextRepository
}

func (r claimOnCreateRepo) Create(ctx context.Context, pc *entities.ProcessingContext) error {
	if err := r.MemoryContextRepository.Create(ctx, pc); err != nil {
		return err
	}
	_, err := r.ClaimRun(ctx, pc.ID, "resume-worker-run", time.Minute)
	return err
}

func TestSubmitAcceptsJobClaimedByResumeWorker(t *testing.T) {
	h := newHarness(t)
	svc := NewController(claimOnCreateRepo{h.repo}, Collaborators{
		Normalizer:  h.normalizer,
		Diarizer:    h.diarizer,
		Transcriber: h.transcriber,
		LLM:         h.llm,
		Renderer:    h.renderer,
	}, h.opts, zaptest.NewLogger(t))

	pc, err := svc.Submit(context.Background(), SubmitRequest{SourceObject: "uploads/a.wav", SourceFilename: "a.wav"})
	require.NoError(t, err)
	require.NotNil(t, pc)

	got := h.get(t, pc.ID)
	assert.Equal(t, "resume-worker-run", got.ActiveRunID)
	assert.Zero(t, h.normalizer.calls, "the claiming run does the work")
	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestResumeWorkerPicksUpWaitingJobs(t *testing.T) {
	h := newHarness(t)
	h.diarizer.await = func(call int32) ([]ai.SpeakerSegment, error) {
		if call == 1 {
			return nil, &apperrors.TimeoutError{Service: "diarization", JobID: "remote-1", Waited: time.Second}
		}
		return meetingSegments(), nil
	}
	c := h.controller(t)
	id := h.newJob(t)
	require.ErrorIs(t, c.Run(context.Background(), id), errStageWaiting)

	require.NoError(t, c.StartResumeWorker(context.Background()))
	require.Error(t, c.StartResumeWorker(context.Background()))

	require.Eventually(t, func() bool {
		return h.get(t, id).Stage == entities.StageDone
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.StopResumeWorker())
	require.NoError(t, c.Shutdown(context.Background()))
}

func TestLookupErrors(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t)

	_, err := c.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, c.Start(context.Background(), uuid.New()), ErrNotFound)

	id := h.newJob(t)
	_, err = c.Transcript(context.Background(), id)
	require.ErrorIs(t, err, ErrTranscriptNotReady)
}
