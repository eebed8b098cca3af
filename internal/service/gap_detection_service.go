package service

import (
	"context"
	"edu_gap_analytics/internal/config"
	"edu_gap_analytics/internal/model"
	"edu_gap_analytics/pkg/logger"
	"edu_gap_analytics/pkg/monitoring"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// GapDetectionService 组合特征提取、模型打分、规则兜底和置信区间估计。
// 模型快照放在读写锁后面，重训产生新快照原子替换，进行中的预测不受影响
type GapDetectionService struct {
	PerformanceRepo performanceStore
	AssessmentRepo  assessmentStore
	Artifacts       ArtifactStore
	Cfg             *config.AnalysisConfig

	extractor  *FeatureExtractor
	rules      *RuleBasedGapDetector
	aggregator *GapAggregator
	estimator  *ConfidenceEstimator

	mu    sync.RWMutex
	model *GapModel
}

func NewGapDetectionService(performanceRepo performanceStore, assessmentRepo assessmentStore, artifacts ArtifactStore, cfg *config.AnalysisConfig) *GapDetectionService {
	return &GapDetectionService{
		PerformanceRepo: performanceRepo,
		AssessmentRepo:  assessmentRepo,
		Artifacts:       artifacts,
		Cfg:             cfg,
		extractor:       NewFeatureExtractor(),
		rules:           NewRuleBasedGapDetector(),
		aggregator:      NewGapAggregator(),
		estimator:       NewConfidenceEstimator(),
		model:           NewGapModel(),
	}
}

// InitializeModels 启动时尝试从产物存储恢复模型；没有产物且数据已够时立即训练一次
func (s *GapDetectionService) InitializeModels(ctx context.Context) error {
	fresh := NewGapModel()
	loaded, err := fresh.Load(ctx, s.Artifacts, s.Cfg.ModelPath)
	if err != nil {
		return err
	}

	if loaded {
		s.swapModel(fresh)
		logger.Log.Info("Loaded existing gap detection models", zap.String("path", s.Cfg.ModelPath))
		return nil
	}

	logger.Log.Info("No stored gap detection models, starting untrained")
	if trained, _, err := s.TrainIfReady(ctx); err != nil {
		logger.Log.Error("Initial model training failed", zap.Error(err))
	} else if trained {
		logger.Log.Info("Initial model training completed")
	}
	return nil
}

func (s *GapDetectionService) IsTrained() bool {
	return s.currentModel().IsTrained()
}

func (s *GapDetectionService) currentModel() *GapModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

func (s *GapDetectionService) swapModel(fresh *GapModel) {
	s.mu.Lock()
	s.model = fresh
	s.mu.Unlock()
}

// DetectLearningGaps 检测某学生的学习差距。
// 模型已训练时对分析窗口内每条记录打分，概率超过阈值的记录按错误作答拆出概念级差距；
// 未训练时回退到规则检测。两条路径都做去重合并和按严重度排序
func (s *GapDetectionService) DetectLearningGaps(studentID string) ([]model.LearningGap, error) {
	start := time.Now()
	defer func() {
		monitoring.PredictionDuration.Observe(time.Since(start).Seconds())
	}()

	gapModel := s.currentModel()
	if !gapModel.IsTrained() {
		logger.Log.Debug("Gap model untrained, using rule-based detection", zap.String("studentId", studentID))
		return s.ruleBasedDetection(studentID)
	}

	since := time.Now().AddDate(0, 0, -s.Cfg.AnalysisWindowDays)
	records, err := s.PerformanceRepo.FindByStudentSince(studentID, since)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		logger.Log.Info("No recent performance data for student", zap.String("studentId", studentID))
		return nil, nil
	}

	assessments, err := s.AssessmentRepo.ListByStudent(studentID)
	if err != nil {
		return nil, err
	}

	var gaps []model.LearningGap
	for i := range records {
		features, ok := s.extractor.Extract(&records[i], assessments)
		if !ok {
			// 畸形记录跳过，绝不因一条坏数据中断整批分析
			logger.Log.Warn("Skipping malformed performance record",
				zap.String("submissionId", records[i].SubmissionID))
			continue
		}

		probability, severity := gapModel.Predict(features)
		if probability <= s.Cfg.GapProbabilityThreshold {
			continue
		}

		gaps = append(gaps, s.identifyConceptGaps(&records[i], severity)...)
	}

	return s.aggregator.Aggregate(gaps), nil
}

func (s *GapDetectionService) ruleBasedDetection(studentID string) ([]model.LearningGap, error) {
	since := time.Now().AddDate(0, 0, -s.Cfg.RuleWindowDays)
	records, err := s.PerformanceRepo.FindByStudentSince(studentID, since)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return s.aggregator.Aggregate(s.rules.Detect(studentID, records)), nil
}

// identifyConceptGaps 从一条记录的错误作答拆出概念级差距：
// severity = min(基准严重度 × 错误数/总题数, 1)，confidence = min(错误数/5, 1)
func (s *GapDetectionService) identifyConceptGaps(record *model.PerformanceRecord, baseSeverity float64) []model.LearningGap {
	if len(record.QuestionResponses) == 0 {
		return nil
	}

	conceptErrors := make(map[string]int)
	order := make([]string, 0)
	for _, response := range record.QuestionResponses {
		if response.Correct {
			continue
		}
		for _, conceptID := range response.ConceptTags {
			if _, seen := conceptErrors[conceptID]; !seen {
				order = append(order, conceptID)
			}
			conceptErrors[conceptID]++
		}
	}

	now := time.Now()
	total := float64(len(record.QuestionResponses))
	gaps := make([]model.LearningGap, 0, len(order))
	for _, conceptID := range order {
		errorCount := float64(conceptErrors[conceptID])
		gaps = append(gaps, model.LearningGap{
			GapID:           model.GenerateUUID(),
			StudentID:       record.StudentID,
			ConceptID:       conceptID,
			GapSeverity:     math.Min(baseSeverity*(errorCount/total), 1.0),
			ConfidenceScore: math.Min(errorCount/5.0, 1.0),
			IdentifiedAt:    now,
			LastUpdated:     now,
			SupportingEvidence: []model.GapEvidence{{
				SubmissionID: record.SubmissionID,
				EvidenceType: "incorrect_responses",
				Weight:       1.0,
			}},
			ImprovementTrend: 0.0,
		})
	}
	return gaps
}

// Aggregator 暴露聚合器，协调器用它做趋势对照
func (s *GapDetectionService) Aggregator() *GapAggregator {
	return s.aggregator
}

// ConfidenceInterval 某学生某概念的准确率置信区间：
// 每条涉及该概念的记录贡献一个概念内正确率样本
func (s *GapDetectionService) ConfidenceInterval(studentID, conceptID string) (model.ConfidenceInterval, error) {
	records, err := s.PerformanceRepo.FindByStudentConcept(studentID, conceptID)
	if err != nil {
		return model.ConfidenceInterval{}, err
	}

	var accuracies []float64
	for _, record := range records {
		correct, total := 0, 0
		for _, response := range record.QuestionResponses {
			if !containsConcept(response.ConceptTags, conceptID) {
				continue
			}
			total++
			if response.Correct {
				correct++
			}
		}
		if total > 0 {
			accuracies = append(accuracies, float64(correct)/float64(total))
		}
	}

	return s.estimator.Estimate(accuracies), nil
}

// prepareTrainingData 用关联查询拼训练集：
// 标签 = 该学生是否有已知差距，严重度 = 已知差距严重度的均值（无差距取 0）
func (s *GapDetectionService) prepareTrainingData() ([][]float64, []int, []float64, error) {
	joined, err := s.PerformanceRepo.ListJoined(0)
	if err != nil {
		return nil, nil, nil, err
	}

	var features [][]float64
	var gapLabels []int
	var severityLabels []float64

	for i := range joined {
		vector, ok := s.extractor.Extract(&joined[i].Record, joined[i].Assessments)
		if !ok {
			continue
		}
		features = append(features, vector)

		if len(joined[i].Gaps) > 0 {
			gapLabels = append(gapLabels, 1)
			severities := make([]float64, len(joined[i].Gaps))
			for j, gap := range joined[i].Gaps {
				severities[j] = gap.GapSeverity
			}
			severityLabels = append(severityLabels, stat.Mean(severities, nil))
		} else {
			gapLabels = append(gapLabels, 0)
			severityLabels = append(severityLabels, 0.0)
		}
	}

	return features, gapLabels, severityLabels, nil
}

// TrainIfReady 数据达标时训练新模型快照并替换当前模型。
// 原始记录或可用样本不足时返回 (false, nil, nil)，不算错误。
// 训练失败时当前模型保持原状
func (s *GapDetectionService) TrainIfReady(ctx context.Context) (bool, *TrainingResult, error) {
	recordCount, err := s.PerformanceRepo.CountAll()
	if err != nil {
		return false, nil, err
	}
	if recordCount < int64(s.Cfg.MinTrainingRecords) {
		logger.Log.Info("Insufficient data for training",
			zap.Int64("records", recordCount),
			zap.Int("required", s.Cfg.MinTrainingRecords))
		return false, nil, nil
	}

	features, gapLabels, severityLabels, err := s.prepareTrainingData()
	if err != nil {
		return false, nil, err
	}
	if len(features) < s.Cfg.MinTrainingSamples {
		logger.Log.Info("Insufficient processed samples for training",
			zap.Int("samples", len(features)),
			zap.Int("required", s.Cfg.MinTrainingSamples))
		return false, nil, nil
	}

	fresh := NewGapModel()
	result, err := fresh.Train(features, gapLabels, severityLabels)
	if err != nil {
		monitoring.TrainingCounter.WithLabelValues("failed").Inc()
		return false, nil, err
	}

	if err := fresh.Save(ctx, s.Artifacts, s.Cfg.ModelPath); err != nil {
		// 持久化失败不影响内存中的新模型生效
		logger.Log.Error("Failed to persist model artifacts", zap.Error(err))
	}

	s.swapModel(fresh)
	monitoring.TrainingCounter.WithLabelValues("success").Inc()

	fields := []zap.Field{
		zap.Float64("classifierAccuracy", result.ClassifierAccuracy),
		zap.Int("samples", result.SampleCount),
		zap.Int("positiveSamples", result.PositiveSamples),
	}
	if result.RegressorScore != nil {
		fields = append(fields, zap.Float64("regressorScore", *result.RegressorScore))
	}
	logger.Log.Info("Gap detection models trained", fields...)

	return true, result, nil
}

// RetrainModels 带着最新数据重新训练；旧模型一直服务到新模型就绪
func (s *GapDetectionService) RetrainModels(ctx context.Context) (bool, *TrainingResult, error) {
	logger.Log.Info("Starting model retraining")
	return s.TrainIfReady(ctx)
}

func containsConcept(tags []string, target string) bool {
	for _, t := range tags {
		if t == target {
			return true
		}
	}
	return false
}
