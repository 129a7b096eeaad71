package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
	"github.com/johnquangdev/meeting-minutes/pkg/jobcontext"
)

// retry runs one external call under the stage retry policy, logging each backoff
func (c *controller) retry(ctx context.Context, call string, fn func(context.Context) error) error {
	return jobcontext.Retry(ctx, c.opts.Retry, fn, func(err error, attempt int, next time.Duration) {
		c.logger.Warn("🔄 Retrying external call", append(jobcontext.Fields(ctx),
			zap.String("call", call),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)...)
	})
}

// audioURL returns a freshly signed URL for the normalized audio when possible,
// since a resumed run may outlive the URL stored at normalization time
func (c *controller) audioURL(ctx context.Context, pc *entities.ProcessingContext) string {
	if c.deps.Signer == nil || pc.NormalizedObject == "" {
		return pc.AudioURL
	}
	url, err := c.deps.Signer.GetFileURL(ctx, pc.NormalizedObject)
	if err != nil {
		c.logger.Warn("failed to re-sign audio URL, using stored URL", append(jobcontext.Fields(ctx), zap.Error(err))...)
		return pc.AudioURL
	}
	return url
}

func (c *controller) normalize(ctx context.Context, r *stageRun) error {
	pc := r.work
	var object, url string
	err := c.retry(ctx, "normalize", func(ctx context.Context) error {
		var err error
		object, url, err = c.deps.Normalizer.Normalize(ctx, pc.ID, pc.SourceObject)
		return err
	})
	if err != nil {
		return err
	}
	pc.NormalizedObject = object
	pc.AudioURL = url
	return nil
}

func (c *controller) diarize(ctx context.Context, r *stageRun) error {
	pc := r.work
	audioURL := c.audioURL(ctx, pc)

	if pc.DiarizationJobID == "" {
		var jobID string
		err := c.retry(ctx, "diarization.submit", func(ctx context.Context) error {
			var err error
			jobID, err = c.deps.Diarizer.Submit(ctx, audioURL)
			return err
		})
		if err != nil {
			return err
		}
		if err := r.checkpoint(ctx, func(pc *entities.ProcessingContext) { pc.DiarizationJobID = jobID }); err != nil {
			return err
		}
		c.logger.Info("diarization job submitted", append(jobcontext.Fields(ctx), zap.String("remote_job_id", jobID))...)
	} else {
		c.logger.Info("re-polling diarization job", append(jobcontext.Fields(ctx), zap.String("remote_job_id", pc.DiarizationJobID))...)
	}

	raw, err := c.deps.Diarizer.Await(ctx, pc.DiarizationJobID, c.opts.DiarizationMaxWait)
	if err != nil {
		return err
	}

	segments, err := normalizeDiarization("diarization", raw)
	if err != nil {
		return err
	}
	if n := countOverlaps(segments); n > 0 {
		c.logger.Warn("diarization returned overlapping segments", append(jobcontext.Fields(ctx), zap.Int("overlaps", n))...)
	}
	merged := MergeConsecutiveSegments(segments, c.opts.MergeGap)

	c.logger.Info("diarization completed", append(jobcontext.Fields(ctx),
		zap.Int("segments", len(segments)),
		zap.Int("merged_segments", len(merged)),
	)...)
	pc.DiarizationSegments = merged
	return nil
}

func (c *controller) transcribe(ctx context.Context, r *stageRun) error {
	pc := r.work
	if len(pc.DiarizationSegments) == 0 {
		pc.TranscribedSegments = []entities.TranscribedSegment{}
		return nil
	}

	audioURL := c.audioURL(ctx, pc)
	batches := MakeBatches(pc.DiarizationSegments, c.opts.BatchTokenBudget, DurationEstimator(c.opts.TokensPerSecond))
	c.logger.Info("transcribing batches", append(jobcontext.Fields(ctx),
		zap.Int("segments", len(pc.DiarizationSegments)),
		zap.Int("batches", len(batches)),
		zap.Int("workers", c.opts.TranscriptionWorkers),
	)...)

	results, err := c.transcribeAll(ctx, audioURL, batches)
	if err != nil {
		return err
	}

	merged, err := Merge(results)
	if err != nil {
		return err
	}
	pc.TranscribedSegments = merged
	return nil
}

// transcribeAll runs batches with bounded parallelism. Results are stored by batch
// index so completion order never affects the merge.
func (c *controller) transcribeAll(parent context.Context, audioURL string, batches []Batch) ([]BatchResult, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	results := make([]BatchResult, len(batches))
	errs := make([]error, len(batches))
	sem := make(chan struct{}, c.opts.TranscriptionWorkers)

	var wg sync.WaitGroup
	for i, b := range batches {
		wg.Add(1)
		go func(i int, b Batch) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()

			texts, err := c.transcribeBatch(ctx, audioURL, b)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			results[i] = BatchResult{Batch: b, Texts: texts}
		}(i, b)
	}
	wg.Wait()

	if err := parent.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return nil, err
		}
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (c *controller) transcribeBatch(ctx context.Context, audioURL string, b Batch) ([]string, error) {
	var texts []string
	err := c.retry(ctx, "transcription.batch", func(ctx context.Context) error {
		out, err := c.deps.Transcriber.TranscribeBatch(ctx, audioURL, toWireSegments(b.Segments))
		if err != nil {
			return err
		}
		texts = make([]string, len(out))
		for i, seg := range out {
			texts[i] = seg.Text
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("batch transcribed", append(jobcontext.Fields(ctx),
		zap.Int("batch_index", b.Index),
		zap.Int("segments", len(b.Segments)),
	)...)
	return texts, nil
}

// chunkBudget is the transcript budget left after the context documents
func (c *controller) chunkBudget(docs ...string) int {
	budget := c.opts.ChunkTokens
	for _, d := range docs {
		budget -= EstimateTextTokens(d)
	}
	if budget < 500 {
		budget = 500
	}
	return budget
}

func (c *controller) complete(ctx context.Context, call, prompt string) (string, error) {
	var out string
	err := c.retry(ctx, call, func(ctx context.Context) error {
		var err error
		out, err = c.deps.LLM.Complete(ctx, systemPrompt, prompt)
		return err
	})
	return out, err
}

func (c *controller) mapSpeakers(ctx context.Context, r *stageRun) error {
	pc := r.work
	pc.SpeakerMapping = entities.SpeakerMapping{}
	if len(pc.TranscribedSegments) == 0 {
		return nil
	}

	labels := speakerLabels(pc.TranscribedSegments)
	excerpt := SpeakerExcerpt(Assemble(pc.TranscribedSegments, nil), c.chunkBudget(pc.Inputs.ParticipantList))

	response, err := c.complete(ctx, "llm.speaker_mapping", speakerMappingPrompt(pc, labels, excerpt))
	if err != nil {
		return err
	}

	mapping, err := c.parser.ParseSpeakerMapping(response, labels)
	if err != nil {
		c.logger.Warn("speaker mapping unparseable, keeping raw labels", append(jobcontext.Fields(ctx), zap.Error(err))...)
		return nil
	}
	c.logger.Info("speakers mapped", append(jobcontext.Fields(ctx),
		zap.Int("labels", len(labels)),
		zap.Int("mapped", len(mapping)),
	)...)
	pc.SpeakerMapping = mapping
	return nil
}

func (c *controller) draftReport(ctx context.Context, r *stageRun) error {
	pc := r.work
	if len(pc.TranscribedSegments) == 0 {
		pc.PreReport = ""
		return nil
	}

	chunks := ChunkTranscript(Assemble(pc.TranscribedSegments, pc.SpeakerMapping), c.chunkBudget(pc.Inputs.Agenda))
	sections := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		section, err := c.complete(ctx, "llm.report", reportPrompt(pc, chunk, len(chunks)))
		if err != nil {
			return err
		}
		sections = append(sections, section)
	}

	report := MergeReports(sections)
	if report == "" {
		return &apperrors.FailureError{Service: "llm", Message: "empty pre-report for a non-empty transcript"}
	}
	pc.PreReport = report
	return nil
}

func (c *controller) extractDecisions(ctx context.Context, r *stageRun) error {
	pc := r.work
	pc.Decisions = []entities.Decision{}
	if len(pc.TranscribedSegments) == 0 {
		return nil
	}

	chunks := ChunkTranscript(Assemble(pc.TranscribedSegments, pc.SpeakerMapping), c.chunkBudget(pc.Inputs.VoteRecord))
	perChunk := make([][]entities.Decision, 0, len(chunks))
	for _, chunk := range chunks {
		response, err := c.complete(ctx, "llm.decisions", decisionsPrompt(pc, chunk, len(chunks)))
		if err != nil {
			return err
		}
		decisions, err := c.parser.ParseDecisions(response)
		if err != nil {
			c.logger.Warn("decision list unparseable, skipping chunk", append(jobcontext.Fields(ctx),
				zap.Int("chunk", chunk.Index),
				zap.Error(err),
			)...)
			continue
		}
		perChunk = append(perChunk, decisions)
	}

	pc.Decisions = MergeDecisions(perChunk)
	return nil
}

func (c *controller) render(ctx context.Context, r *stageRun) error {
	pc := r.work
	transcript := Assemble(pc.TranscribedSegments, pc.SpeakerMapping)

	var docs map[string]string
	err := c.retry(ctx, "render", func(ctx context.Context) error {
		var err error
		docs, err = c.deps.Renderer.Render(ctx, pc, transcript)
		return err
	})
	if err != nil {
		return err
	}
	pc.Documents = datatypes.NewJSONType(docs)
	return nil
}

// speakerLabels returns distinct labels in order of first appearance
func speakerLabels(segments []entities.TranscribedSegment) []string {
	seen := make(map[string]bool)
	labels := make([]string, 0)
	for _, s := range segments {
		if !seen[s.SpeakerLabel] {
			seen[s.SpeakerLabel] = true
			labels = append(labels, s.SpeakerLabel)
		}
	}
	return labels
}
