package pose

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"M1Pose/core/worker"
	"M1Pose/logger"
	"M1Pose/model"
	"M1Pose/repository"
)

// Analyzer is the analysis orchestrator: it validates the session, runs
// the extraction/comparison/rendering/encoding pipeline on the worker
// dispatcher, persists artifacts and stores the result payload. It owns no
// state of its own; everything lives in the injected collaborators.
type Analyzer struct {
	registry   repository.SessionRegistry
	results    repository.ResultStore
	artifacts  *ArtifactWriter
	estimator  Estimator
	renderer   Renderer
	encoder    Encoder
	dispatcher *worker.Dispatcher
}

// NewAnalyzer creates an Analyzer around its collaborators.
func NewAnalyzer(
	registry repository.SessionRegistry,
	results repository.ResultStore,
	artifacts *ArtifactWriter,
	estimator Estimator,
	renderer Renderer,
	encoder Encoder,
	dispatcher *worker.Dispatcher,
) *Analyzer {
	return &Analyzer{
		registry:   registry,
		results:    results,
		artifacts:  artifacts,
		estimator:  estimator,
		renderer:   renderer,
		encoder:    encoder,
		dispatcher: dispatcher,
	}
}

// Analyze runs the full pipeline for a registered session and returns the
// result payload. The caller's goroutine suspends on the dispatched task;
// the pipeline itself runs on the worker pool. Errors out of the registry
// (unknown session, analysis already running) pass through untouched so the
// boundary layer can map them to status codes.
func (a *Analyzer) Analyze(ctx context.Context, sessionID string, settings model.AnalysisSettings) (*model.AnalysisResult, error) {
	record, err := a.registry.BeginAnalysis(sessionID)
	if err != nil {
		return nil, err
	}

	var payload *model.AnalysisResult
	task, err := a.dispatcher.Submit(ctx, func(jobCtx context.Context) error {
		result, runErr := a.runPipeline(jobCtx, record, settings)
		a.registry.FinishAnalysis(sessionID, runErr)
		if runErr != nil {
			return runErr
		}
		payload = result
		return nil
	})
	if err != nil {
		// 提交失败（等待槽位时取消），回写状态避免会话卡在 analyzing
		a.registry.FinishAnalysis(sessionID, err)
		return nil, err
	}

	if err := task.Wait(ctx); err != nil {
		return nil, err
	}
	return payload, nil
}

// runPipeline executes the pipeline steps in order. Partial artifacts from
// a failed run are left in place; the next successful run overwrites them.
func (a *Analyzer) runPipeline(ctx context.Context, record *model.SessionUploadRecord, settings model.AnalysisSettings) (*model.AnalysisResult, error) {
	start := time.Now()
	logger.Info("开始分析会话",
		logger.String("sessionId", record.SessionID),
		logger.Int("modelComplexity", settings.ModelComplexity))

	referenceSeq, err := a.estimator.ExtractLandmarks(ctx, record.ReferencePath, settings)
	if err != nil {
		logger.Error("参考视频关键点提取失败",
			logger.String("sessionId", record.SessionID),
			logger.String("video", record.ReferencePath),
			logger.ErrorField(err))
		return nil, fmt.Errorf("extract reference landmarks: %w", err)
	}

	comparisonSeq, err := a.estimator.ExtractLandmarks(ctx, record.ComparisonPath, settings)
	if err != nil {
		logger.Error("对比视频关键点提取失败",
			logger.String("sessionId", record.SessionID),
			logger.String("video", record.ComparisonPath),
			logger.ErrorField(err))
		return nil, fmt.Errorf("extract comparison landmarks: %w", err)
	}

	metrics, err := a.estimator.CompareSequences(referenceSeq, comparisonSeq)
	if err != nil {
		logger.Error("序列对比失败",
			logger.String("sessionId", record.SessionID),
			logger.ErrorField(err))
		return nil, fmt.Errorf("compare sequences: %w", err)
	}

	// 共享画布：两段序列宽高的逐项最大值，保证叠加对比时画幅一致
	canvasWidth := maxInt(referenceSeq.Width, comparisonSeq.Width)
	canvasHeight := maxInt(referenceSeq.Height, comparisonSeq.Height)

	// 参考序列先渲染并确定锚点，对比序列必须对齐到同一锚点，
	// 这两步有强制顺序，不能并行
	referenceFrames, anchor, err := a.renderer.RenderSequence(ctx, referenceSeq, canvasWidth, canvasHeight, nil)
	if err != nil {
		logger.Error("参考序列渲染失败",
			logger.String("sessionId", record.SessionID),
			logger.ErrorField(err))
		return nil, fmt.Errorf("render reference sequence: %w", err)
	}

	comparisonFrames, _, err := a.renderer.RenderSequence(ctx, comparisonSeq, canvasWidth, canvasHeight, anchor)
	if err != nil {
		logger.Error("对比序列渲染失败",
			logger.String("sessionId", record.SessionID),
			logger.ErrorField(err))
		return nil, fmt.Errorf("render comparison sequence: %w", err)
	}

	referenceVideo, err := a.encoder.EncodeVideo(ctx, referenceFrames)
	if err != nil {
		logger.Error("参考预览编码失败",
			logger.String("sessionId", record.SessionID),
			logger.ErrorField(err))
		return nil, fmt.Errorf("encode reference preview: %w", err)
	}

	comparisonVideo, err := a.encoder.EncodeVideo(ctx, comparisonFrames)
	if err != nil {
		logger.Error("对比预览编码失败",
			logger.String("sessionId", record.SessionID),
			logger.ErrorField(err))
		return nil, fmt.Errorf("encode comparison preview: %w", err)
	}

	sessionID := record.SessionID
	sessionDir := record.SessionDir

	referencePreviewURL, err := a.artifacts.Write(ctx, sessionDir, sessionID, PreviewReferenceName, referenceVideo)
	if err != nil {
		return nil, fmt.Errorf("persist reference preview: %w", err)
	}
	comparisonPreviewURL, err := a.artifacts.Write(ctx, sessionDir, sessionID, PreviewComparisonName, comparisonVideo)
	if err != nil {
		return nil, fmt.Errorf("persist comparison preview: %w", err)
	}

	referenceLandmarksURL, err := a.artifacts.WriteJSON(ctx, sessionDir, sessionID, ReferenceLandmarksName, sequenceDocument(referenceSeq))
	if err != nil {
		return nil, fmt.Errorf("persist reference landmarks: %w", err)
	}
	comparisonLandmarksURL, err := a.artifacts.WriteJSON(ctx, sessionDir, sessionID, ComparisonLandmarksName, sequenceDocument(comparisonSeq))
	if err != nil {
		return nil, fmt.Errorf("persist comparison landmarks: %w", err)
	}

	metricsURL, err := a.artifacts.WriteJSON(ctx, sessionDir, sessionID, ResultsDocumentName, resultsDocument{
		SessionID:   sessionID,
		Metrics:     metrics,
		GeneratedAt: utcNow(),
		Settings:    settings,
	})
	if err != nil {
		return nil, fmt.Errorf("persist results document: %w", err)
	}

	payload := &model.AnalysisResult{
		SessionID:        sessionID,
		Metrics:          metrics,
		AnalysisSettings: settings,
		PreviewVideos: model.VideoPair{
			Reference:  referencePreviewURL,
			Comparison: comparisonPreviewURL,
		},
		Downloads: model.DownloadLinks{
			Metrics:             metricsURL,
			ReferenceLandmarks:  referenceLandmarksURL,
			ComparisonLandmarks: comparisonLandmarksURL,
		},
		SourceVideos: model.VideoPair{
			Reference:  a.artifacts.URL(sessionID, filepath.Base(record.ReferencePath)),
			Comparison: a.artifacts.URL(sessionID, filepath.Base(record.ComparisonPath)),
		},
		OriginalFilenames: model.VideoPair{
			Reference:  record.ReferenceOriginalName,
			Comparison: record.ComparisonOriginalName,
		},
		UploadedAt: record.UploadedAt,
		UpdatedAt:  utcNow(),
	}

	if err := a.results.Put(ctx, payload); err != nil {
		logger.Error("结果写入失败",
			logger.String("sessionId", sessionID),
			logger.ErrorField(err))
		return nil, fmt.Errorf("store analysis result: %w", err)
	}

	logger.Info("会话分析完成",
		logger.String("sessionId", sessionID),
		logger.Int("canvasWidth", canvasWidth),
		logger.Int("canvasHeight", canvasHeight),
		logger.Int("referenceFrames", len(referenceFrames.Frames)),
		logger.Int("comparisonFrames", len(comparisonFrames.Frames)),
		logger.Duration("totalTime", time.Since(start)))

	return payload, nil
}

// resultsDocument is the downloadable metrics document written next to the
// preview videos.
type resultsDocument struct {
	SessionID   string                 `json:"session_id"`
	Metrics     map[string]float64     `json:"metrics"`
	GeneratedAt string                 `json:"generated_at"`
	Settings    model.AnalysisSettings `json:"settings"`
}

// sequenceDocument strips the sequence's source path down to its basename
// before the dump is exposed for download.
func sequenceDocument(seq *model.LandmarkSequence) *model.LandmarkSequence {
	doc := *seq
	doc.SourcePath = filepath.Base(seq.SourcePath)
	return &doc
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
