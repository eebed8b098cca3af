package service

import (
	"context"
	"edu_gap_analytics/internal/config"
	"edu_gap_analytics/internal/model"
	"edu_gap_analytics/pkg/logger"
	"edu_gap_analytics/pkg/monitoring"
	"edu_gap_analytics/pkg/tracing"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	modelTypeGapDetection = "gap_detection"
	historyCachePrefix    = "gap:history:"
	defaultHistoryLimit   = 10
)

// AnalysisCoordinator 差距分析的实时协调器：
// 无界 FIFO 队列 + 单消费者循环（5 秒轮询超时以便及时感知停机）+ 周期性重训调度。
// 排队请求顺序处理，任意时刻最多一个分析或重训在执行；紧急分析在调用方上下文同步跑，
// 与后台消费者并发时只读共享模型快照
type AnalysisCoordinator struct {
	Detection       *GapDetectionService
	PerformanceRepo performanceStore
	GapRepo         gapStore
	AnalysisRepo    analysisStore
	TrainingRuns    trainingRunStore
	Redis           *redis.Client // 可为 nil，历史查询缓存
	Cfg             *config.AnalysisConfig

	mu      sync.Mutex
	queue   []model.AnalysisRequest
	wake    chan struct{}
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	active  int32
}

func NewAnalysisCoordinator(
	detection *GapDetectionService,
	performanceRepo performanceStore,
	gapRepo gapStore,
	analysisRepo analysisStore,
	trainingRuns trainingRunStore,
	rdb *redis.Client,
	cfg *config.AnalysisConfig,
) *AnalysisCoordinator {
	return &AnalysisCoordinator{
		Detection:       detection,
		PerformanceRepo: performanceRepo,
		GapRepo:         gapRepo,
		AnalysisRepo:    analysisRepo,
		TrainingRuns:    trainingRuns,
		Redis:           rdb,
		Cfg:             cfg,
		wake:            make(chan struct{}, 1),
	}
}

// Initialize 加载或初始化模型，必须在 Start 之前完成
func (c *AnalysisCoordinator) Initialize(ctx context.Context) error {
	return c.Detection.InitializeModels(ctx)
}

// Start 启动后台消费循环和重训调度循环。已在运行时为 no-op
func (c *AnalysisCoordinator) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		logger.Log.Warn("Background gap analysis processing already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.wg.Add(2)
	go c.consumeLoop(ctx)
	go c.retrainLoop(ctx)

	logger.Log.Info("Started background gap analysis processing")
}

// Stop 取消两个后台循环并等待退出，幂等。
// 处理中的请求被放弃，不会留下半写的结果
func (c *AnalysisCoordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	logger.Log.Info("Stopped background gap analysis processing")
}

// TriggerGapAnalysis 入队一条分析请求，立即返回，绝不阻塞调用方。
// 队列无界，没有背压（已知限制，水平扩展需要外部队列）
func (c *AnalysisCoordinator) TriggerGapAnalysis(studentID string, submissionData map[string]interface{}) {
	c.enqueue(model.AnalysisRequest{
		Type:           model.RequestGapAnalysis,
		StudentID:      studentID,
		SubmissionData: submissionData,
		Timestamp:      time.Now(),
		Priority:       "normal",
	})
	logger.Log.Debug("Queued gap analysis", zap.String("studentId", studentID))
}

// TriggerUrgentAnalysis 绕过队列和充分性闸门，同步执行完整管线并返回结果。
// 错误向调用方传播（同步 API 契约）
func (c *AnalysisCoordinator) TriggerUrgentAnalysis(ctx context.Context, studentID, reason string) (*model.GapAnalysis, error) {
	_, span := tracing.Tracer.Start(ctx, "urgent_gap_analysis")
	defer span.End()

	logger.Log.Info("Starting urgent gap analysis",
		zap.String("studentId", studentID),
		zap.String("reason", reason))
	return c.runAnalysis(studentID, false)
}

// RetrainModels 手动触发重训，同步执行
func (c *AnalysisCoordinator) RetrainModels(ctx context.Context) (bool, error) {
	return c.runRetrain(ctx)
}

func (c *AnalysisCoordinator) GetQueueStatus() model.QueueStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.QueueStatus{
		QueueSize:   len(c.queue),
		IsRunning:   c.running,
		ActiveTasks: int(atomic.LoadInt32(&c.active)),
	}
}

// GetAnalysisHistory 按时间倒序返回历史分析，默认条数的查询走 Redis 缓存
func (c *AnalysisCoordinator) GetAnalysisHistory(studentID string, limit int) ([]model.GapAnalysis, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	cacheable := c.Redis != nil && limit == defaultHistoryLimit
	cacheKey := historyCachePrefix + studentID

	if cacheable {
		val, err := c.Redis.Get(context.Background(), cacheKey).Result()
		if err == nil {
			var cached []model.GapAnalysis
			if jsonErr := json.Unmarshal([]byte(val), &cached); jsonErr == nil {
				return cached, nil
			}
		} else if err != redis.Nil {
			logger.Log.Warn("History cache read failed", zap.Error(err))
		}
	}

	analyses, err := c.AnalysisRepo.HistoryByStudent(studentID, limit)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if data, jsonErr := json.Marshal(analyses); jsonErr == nil {
			if err := c.Redis.Set(context.Background(), cacheKey, data, c.Cfg.HistoryCacheTTL()).Err(); err != nil {
				logger.Log.Warn("History cache write failed", zap.Error(err))
			}
		}
	}

	return analyses, nil
}

// GetSystemStatus 队列状态 + 24 小时分析量 + 活跃差距总数
func (c *AnalysisCoordinator) GetSystemStatus() (*model.SystemStatus, error) {
	queueStatus := c.GetQueueStatus()

	recentAnalyses, err := c.AnalysisRepo.CountSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		return nil, err
	}

	totalGaps, err := c.GapRepo.CountAll()
	if err != nil {
		return nil, err
	}

	return &model.SystemStatus{
		QueueStatus:       queueStatus,
		RecentAnalyses24h: recentAnalyses,
		TotalActiveGaps:   totalGaps,
		SystemHealthy:     queueStatus.IsRunning,
	}, nil
}

// CheckDataSufficiency 充分性闸门：近 30 天 ≥3 次提交、累计 ≥5 次、覆盖 ≥2 个概念
func (c *AnalysisCoordinator) CheckDataSufficiency(studentID string) (model.DataSufficiency, error) {
	since := time.Now().AddDate(0, 0, -c.Cfg.RuleWindowDays)

	recent, err := c.PerformanceRepo.CountByStudentSince(studentID, since)
	if err != nil {
		return model.DataSufficiency{}, err
	}
	total, err := c.PerformanceRepo.CountByStudent(studentID)
	if err != nil {
		return model.DataSufficiency{}, err
	}
	concepts, err := c.PerformanceRepo.DistinctConceptCount(studentID)
	if err != nil {
		return model.DataSufficiency{}, err
	}

	sufficiency := model.DataSufficiency{
		Sufficient: recent >= int64(c.Cfg.MinRecentSubmissions) &&
			total >= int64(c.Cfg.MinTotalSubmissions) &&
			concepts >= int64(c.Cfg.MinUniqueConcepts),
		RecentSubmissions: recent,
		TotalSubmissions:  total,
		UniqueConcepts:    concepts,
	}
	if !sufficiency.Sufficient {
		sufficiency.Recommendations = c.dataCollectionRecommendations(recent, total, concepts)
	}
	return sufficiency, nil
}

func (c *AnalysisCoordinator) dataCollectionRecommendations(recent, total, concepts int64) []string {
	var recommendations []string
	if recent < int64(c.Cfg.MinRecentSubmissions) {
		recommendations = append(recommendations, "Complete more recent assignments to improve analysis accuracy")
	}
	if total < int64(c.Cfg.MinTotalSubmissions) {
		recommendations = append(recommendations, "Complete additional assignments for better trend analysis")
	}
	if concepts < int64(c.Cfg.MinUniqueConcepts) {
		recommendations = append(recommendations, "Complete assignments covering different topics for comprehensive analysis")
	}
	return recommendations
}

func (c *AnalysisCoordinator) enqueue(request model.AnalysisRequest) {
	c.mu.Lock()
	c.queue = append(c.queue, request)
	monitoring.QueueDepthGauge.Set(float64(len(c.queue)))
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// dequeue 返回 (请求, true)；轮询超时返回 (nil, true)；上下文取消返回 (nil, false)
func (c *AnalysisCoordinator) dequeue(ctx context.Context) (*model.AnalysisRequest, bool) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			request := c.queue[0]
			c.queue = c.queue[1:]
			monitoring.QueueDepthGauge.Set(float64(len(c.queue)))
			c.mu.Unlock()
			return &request, true
		}
		c.mu.Unlock()

		timer := time.NewTimer(c.Cfg.QueuePollTimeout())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-c.wake:
			timer.Stop()
		case <-timer.C:
			return nil, true
		}
	}
}

func (c *AnalysisCoordinator) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	logger.Log.Info("Started gap analysis processing loop")

	for {
		request, ok := c.dequeue(ctx)
		if !ok {
			return
		}
		if request == nil {
			continue // 轮询超时，回头检查队列和停机信号
		}

		atomic.AddInt32(&c.active, 1)
		c.processRequest(ctx, request)
		atomic.AddInt32(&c.active, -1)
	}
}

// processRequest 后台路径的错误只记录不上抛，一次失败不能杀死消费循环
func (c *AnalysisCoordinator) processRequest(ctx context.Context, request *model.AnalysisRequest) {
	switch request.Type {
	case model.RequestGapAnalysis:
		if _, err := c.runAnalysis(request.StudentID, true); err != nil {
			monitoring.AnalysisCounter.WithLabelValues("failed").Inc()
			logger.Log.Error("Gap analysis request failed",
				zap.String("studentId", request.StudentID),
				zap.Error(err))
		}
	case model.RequestModelRetrain:
		if _, err := c.runRetrain(ctx); err != nil {
			logger.Log.Error("Model retrain request failed", zap.Error(err))
		}
	default:
		logger.Log.Warn("Unknown analysis request type", zap.String("type", string(request.Type)))
	}
}

// runAnalysis 排队路径（gated=true）先过充分性闸门，不足时落盘占位结果直接返回；
// 紧急路径（gated=false）跳过闸门直接检测
func (c *AnalysisCoordinator) runAnalysis(studentID string, gated bool) (*model.GapAnalysis, error) {
	if gated {
		sufficiency, err := c.CheckDataSufficiency(studentID)
		if err != nil {
			return nil, err
		}
		if !sufficiency.Sufficient {
			return c.persistInsufficientData(studentID, sufficiency)
		}
	}

	gaps, err := c.Detection.DetectLearningGaps(studentID)
	if err != nil {
		return nil, err
	}

	// 趋势对照最近一次历史分析；读取失败按无历史处理
	previous, err := c.AnalysisRepo.LatestByStudent(studentID)
	if err != nil {
		logger.Log.Warn("Failed to load previous analysis for trend",
			zap.String("studentId", studentID), zap.Error(err))
		previous = nil
	}
	c.Detection.Aggregator().ApplyTrend(gaps, previous)

	intervals := make(map[string]model.ConfidenceInterval)
	for _, gap := range gaps {
		if _, done := intervals[gap.ConceptID]; done {
			continue
		}
		interval, err := c.Detection.ConfidenceInterval(studentID, gap.ConceptID)
		if err != nil {
			return nil, err
		}
		intervals[gap.ConceptID] = interval
	}

	averageSeverity := 0.0
	if len(gaps) > 0 {
		var sum float64
		for _, gap := range gaps {
			sum += gap.GapSeverity
		}
		averageSeverity = sum / float64(len(gaps))
	}

	analysis := &model.GapAnalysis{
		StudentID:                studentID,
		AnalysisTimestamp:        time.Now(),
		IdentifiedGaps:           gaps,
		TotalGaps:                len(gaps),
		AverageSeverity:          averageSeverity,
		ConfidenceIntervals:      intervals,
		RecommendationsGenerated: false,
	}

	if err := c.persistAnalysis(analysis); err != nil {
		return nil, err
	}

	monitoring.AnalysisCounter.WithLabelValues("completed").Inc()
	logger.Log.Info("Completed gap analysis",
		zap.String("studentId", studentID),
		zap.Int("gaps", len(gaps)))

	return analysis, nil
}

func (c *AnalysisCoordinator) persistInsufficientData(studentID string, sufficiency model.DataSufficiency) (*model.GapAnalysis, error) {
	placeholder := &model.GapAnalysis{
		StudentID:           studentID,
		AnalysisTimestamp:   time.Now(),
		IdentifiedGaps:      []model.LearningGap{},
		TotalGaps:           0,
		AverageSeverity:     0.0,
		ConfidenceIntervals: map[string]model.ConfidenceInterval{},
		InsufficientData:    true,
		DataSufficiency:     &sufficiency,
	}

	if err := c.AnalysisRepo.Create(placeholder); err != nil {
		return nil, err
	}
	c.invalidateHistoryCache(studentID)

	monitoring.AnalysisCounter.WithLabelValues("insufficient_data").Inc()
	logger.Log.Info("Stored insufficient data analysis",
		zap.String("studentId", studentID),
		zap.Int64("recentSubmissions", sufficiency.RecentSubmissions),
		zap.Int64("totalSubmissions", sufficiency.TotalSubmissions),
		zap.Int64("uniqueConcepts", sufficiency.UniqueConcepts))

	return placeholder, nil
}

func (c *AnalysisCoordinator) persistAnalysis(analysis *model.GapAnalysis) error {
	if err := c.AnalysisRepo.Create(analysis); err != nil {
		return err
	}

	for i := range analysis.IdentifiedGaps {
		gap := analysis.IdentifiedGaps[i]
		gap.LastUpdated = time.Now()
		if err := c.GapRepo.UpsertByStudentConcept(&gap); err != nil {
			return err
		}
	}

	c.invalidateHistoryCache(analysis.StudentID)
	return nil
}

func (c *AnalysisCoordinator) invalidateHistoryCache(studentID string) {
	if c.Redis == nil {
		return
	}
	if err := c.Redis.Del(context.Background(), historyCachePrefix+studentID).Err(); err != nil {
		logger.Log.Warn("History cache invalidation failed", zap.Error(err))
	}
}

// retrainLoop 周期性（默认 24h）把重训作为普通请求排进队列，
// 和排队分析在同一个消费者里串行执行，训练和预测不会重叠
func (c *AnalysisCoordinator) retrainLoop(ctx context.Context) {
	defer c.wg.Done()
	logger.Log.Info("Started periodic model retraining loop")

	ticker := time.NewTicker(c.Cfg.RetrainInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		lastRun, err := c.TrainingRuns.Latest(modelTypeGapDetection)
		if err != nil {
			logger.Log.Error("Failed to read last training run", zap.Error(err))
			continue
		}

		if lastRun != nil {
			newRecords, err := c.PerformanceRepo.CountSince(lastRun.LastTrained)
			if err != nil {
				logger.Log.Error("Failed to count new records for retraining", zap.Error(err))
				continue
			}
			if newRecords < int64(c.Cfg.MinRetrainNewRecords) {
				monitoring.TrainingCounter.WithLabelValues("skipped").Inc()
				logger.Log.Info("Skipping retraining",
					zap.Int64("newRecords", newRecords),
					zap.Int("required", c.Cfg.MinRetrainNewRecords))
				continue
			}
		}

		c.enqueue(model.AnalysisRequest{
			Type:      model.RequestModelRetrain,
			Timestamp: time.Now(),
			Priority:  "low",
		})
		logger.Log.Info("Queued model retraining")
	}
}

// runRetrain 执行重训并记录训练元数据；失败时旧模型保持服务
func (c *AnalysisCoordinator) runRetrain(ctx context.Context) (bool, error) {
	success, result, err := c.Detection.RetrainModels(ctx)
	if err != nil {
		return false, err
	}
	if !success {
		logger.Log.Info("Model retraining skipped: insufficient data")
		return false, nil
	}

	run := &model.TrainingRun{
		ModelType:          modelTypeGapDetection,
		Version:            model.GenerateUUID(),
		LastTrained:        time.Now(),
		Success:            true,
		ClassifierAccuracy: result.ClassifierAccuracy,
		RegressorScore:     result.RegressorScore,
		SampleCount:        result.SampleCount,
		PositiveSamples:    result.PositiveSamples,
	}
	if err := c.TrainingRuns.Create(run); err != nil {
		logger.Log.Error("Failed to record training run", zap.Error(err))
	}

	logger.Log.Info("Model retraining completed", zap.String("version", run.Version))
	return true, nil
}
