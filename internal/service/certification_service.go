package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"prepcourse_backend/internal/config"
	"prepcourse_backend/internal/model"
	"prepcourse_backend/internal/repository"
	"prepcourse_backend/internal/util"
	"prepcourse_backend/pkg/logger"
	"prepcourse_backend/pkg/monitoring"
	"prepcourse_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const lockGrace = 30 * time.Second

// TestView is a test with its JSON columns decoded for the client.
type TestView struct {
	*model.CourseTest
	Questions    []model.Question        `json:"questions"`
	Instructions *model.TestInstructions `json:"instructions"`
	Answers      []string                `json:"answers,omitempty"`
	Evaluations  []model.Evaluation      `json:"evaluationResults,omitempty"`
}

func NewTestView(t *model.CourseTest) (*TestView, error) {
	questions, err := t.ParsedQuestions()
	if err != nil {
		return nil, err
	}
	instructions, err := t.ParsedInstructions()
	if err != nil {
		return nil, err
	}
	answers, err := t.ParsedAnswers()
	if err != nil {
		return nil, err
	}
	evaluations, err := t.ParsedEvaluations()
	if err != nil {
		return nil, err
	}
	return &TestView{
		CourseTest:   t,
		Questions:    questions,
		Instructions: instructions,
		Answers:      answers,
		Evaluations:  evaluations,
	}, nil
}

// CertificationService generates, grades and lists certification tests.
type CertificationService struct {
	CourseRepo     *repository.CourseRepository
	EnrollmentRepo *repository.EnrollmentRepository
	TestRepo       *repository.CourseTestRepository
	AI             Completer
	Locker         Locker
	// Clock defaults to time.Now.
	Clock func() time.Time

	policy  atomic.Pointer[config.AssessmentConfig]
	lockTTL atomic.Int64
}

func NewCertificationService(
	courseRepo *repository.CourseRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	testRepo *repository.CourseTestRepository,
	ai Completer,
	locker Locker,
	cfg *config.Config,
) *CertificationService {
	s := &CertificationService{
		CourseRepo:     courseRepo,
		EnrollmentRepo: enrollmentRepo,
		TestRepo:       testRepo,
		AI:             ai,
		Locker:         locker,
		Clock:          time.Now,
	}
	s.UpdatePolicy(cfg.Assessment)
	s.SetLockTTL(cfg.AI.Timeout() + lockGrace)
	return s
}

// UpdatePolicy replaces the assessment policy used by later requests.
func (s *CertificationService) UpdatePolicy(p config.AssessmentConfig) {
	s.policy.Store(&p)
}

func (s *CertificationService) Policy() config.AssessmentConfig {
	return *s.policy.Load()
}

// SetLockTTL bounds how long a generation lock survives a crashed holder.
func (s *CertificationService) SetLockTTL(ttl time.Duration) {
	s.lockTTL.Store(int64(ttl))
}

func generationLockKey(courseID, userID uint) string {
	return "test-generate:" + model.ActiveKeyFor(courseID, userID)
}

// GenerateTest returns the learner's in-progress test, or creates a new one
// when the cooldown since the previous test has elapsed.
func (s *CertificationService) GenerateTest(ctx context.Context, courseID, userID uint) (view *TestView, err error) {
	ctx, end := tracing.StartSpan(ctx, "CertificationService.GenerateTest",
		attribute.Int("course.id", int(courseID)), attribute.Int("user.id", int(userID)))
	defer func() { end(err) }()

	// 1. 校验课程访问权限（作者或已报名）
	course, err := ensureCourseAccess(ctx, s.CourseRepo, s.EnrollmentRepo, courseID, userID)
	if err != nil {
		return nil, err
	}

	// 2. 至少一个章节已有内容
	chapters, err := s.CourseRepo.ListChapters(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !anyContent(chapters) {
		return nil, util.ErrInsufficientContent
	}

	// 3. 同一用户同一课程串行生成
	unlock, err := s.Locker.Lock(ctx, generationLockKey(courseID, userID), time.Duration(s.lockTTL.Load()))
	if err != nil {
		return nil, fmt.Errorf("acquire generation lock: %w", err)
	}
	defer unlock()

	policy := s.Policy()

	// 4. 已有进行中的考试则直接返回
	existing, err := s.TestRepo.FindInProgress(ctx, courseID, userID)
	switch {
	case err == nil:
		return NewTestView(existing)
	case !errors.Is(err, util.ErrNotFound):
		return nil, err
	}

	// 5. 冷却期检查
	latest, err := s.TestRepo.FindLatest(ctx, courseID, userID)
	switch {
	case err == nil:
		if cdErr := s.checkCooldown(latest, policy); cdErr != nil {
			monitoring.CooldownRejections.Inc()
			return nil, cdErr
		}
	case !errors.Is(err, util.ErrNotFound):
		return nil, err
	}

	// 6. 生成题目，模型输出不可用时使用备用题集
	set, err := s.buildQuestionSet(ctx, course, chapters, policy)
	if err != nil {
		return nil, err
	}

	// 7. 保存考试
	test, err := s.persist(ctx, courseID, userID, set, policy)
	if err != nil {
		// another instance may have inserted between our checks and the insert
		if winner, findErr := s.TestRepo.FindInProgress(ctx, courseID, userID); findErr == nil {
			return NewTestView(winner)
		}
		return nil, fmt.Errorf("create test: %w", err)
	}

	monitoring.TestGenerations.WithLabelValues(string(set.Source)).Inc()
	logger.Log.Info("Certification test created",
		zap.Uint("courseId", courseID),
		zap.Uint("userId", userID),
		zap.String("testId", test.ID),
		zap.String("source", string(set.Source)),
		zap.Int("questions", len(set.Questions)),
		zap.Int("totalMarks", set.TotalMarks))

	return NewTestView(test)
}

func anyContent(chapters []model.Chapter) bool {
	for i := range chapters {
		if chapters[i].HasContent() {
			return true
		}
	}
	return false
}

func (s *CertificationService) checkCooldown(latest *model.CourseTest, policy config.AssessmentConfig) error {
	cooldown := policy.Cooldown()
	elapsed := s.Clock().Sub(latest.CreatedAt)
	if elapsed >= cooldown {
		return nil
	}
	return &util.CooldownError{
		Remaining:       cooldown - elapsed,
		NextAvailableAt: latest.CreatedAt.Add(cooldown),
	}
}

// buildQuestionSet asks the model for questions and falls back to the
// deterministic set when the answer cannot be used. A transport failure is an error.
func (s *CertificationService) buildQuestionSet(ctx context.Context, course *model.Course, chapters []model.Chapter, policy config.AssessmentConfig) (QuestionSet, error) {
	completion, err := s.AI.Complete(ctx, CompletionRequest{
		Purpose:     "test_generation",
		System:      testSystemPrompt,
		Prompt:      testGenerationPrompt(course.Title, courseContext(chapters, policy.ContentBudget)),
		Temperature: policy.GenerationTemperature,
		JSON:        true,
	})

	var (
		questions []model.Question
		reason    string
	)
	switch {
	case errors.Is(err, ErrEmptyCompletion):
		reason = err.Error()
	case err != nil:
		return QuestionSet{}, util.WithDetails(util.ErrGenerationFailure, "test generation request failed", err)
	default:
		questions, reason = parseQuestionSet(completion, policy.MinQuestions)
	}

	set := QuestionSet{Questions: questions, Source: model.SourceLLM}
	if reason != "" {
		titles := make([]string, 0, len(chapters))
		for _, ch := range chapters {
			titles = append(titles, ch.Title)
		}
		set = QuestionSet{
			Questions:      FallbackQuestionSet(titles),
			Source:         model.SourceFallback,
			FallbackReason: reason,
		}
		logger.Log.Warn("Using fallback question set",
			zap.Uint("courseId", course.ID),
			zap.String("reason", reason))
	}

	set.TotalMarks = NormalizeMarks(set.Questions)
	return set, nil
}

func (s *CertificationService) persist(ctx context.Context, courseID, userID uint, set QuestionSet, policy config.AssessmentConfig) (*model.CourseTest, error) {
	instructions := buildInstructions(set.Questions, set.TotalMarks, policy)

	questionsJSON, err := json.Marshal(set.Questions)
	if err != nil {
		return nil, err
	}
	instructionsJSON, err := json.Marshal(instructions)
	if err != nil {
		return nil, err
	}

	test := &model.CourseTest{
		CourseID:       courseID,
		UserID:         userID,
		Questions:      datatypes.JSON(questionsJSON),
		Instructions:   datatypes.JSON(instructionsJSON),
		TimeLimit:      policy.TimeLimitMinutes,
		PassingScore:   policy.PassingScore,
		TotalMarks:     set.TotalMarks,
		QuestionSource: set.Source,
	}
	test.CreatedAt = s.Clock()

	if err := s.TestRepo.Create(ctx, test); err != nil {
		return nil, err
	}
	return test, nil
}

// SubmitTest grades the answers with the model and finalizes the test.
func (s *CertificationService) SubmitTest(ctx context.Context, courseID uint, testID string, userID uint, answers []string) (view *TestView, err error) {
	ctx, end := tracing.StartSpan(ctx, "CertificationService.SubmitTest",
		attribute.String("test.id", testID), attribute.Int("user.id", int(userID)))
	defer func() { end(err) }()

	// 1. 获取考试并确认未提交
	test, err := s.TestRepo.FindForUser(ctx, courseID, testID, userID)
	if err != nil {
		return nil, err
	}
	if test.IsCompleted() {
		return nil, util.ErrAlreadySubmitted
	}

	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	questions, err := test.ParsedQuestions()
	if err != nil {
		return nil, err
	}

	// 2. 答案按题目顺序对齐，缺失的按空答案处理
	aligned := make([]string, len(questions))
	for i := range aligned {
		aligned[i] = answerAt(answers, i)
	}

	// 3. 调用模型评分
	completion, err := s.AI.Complete(ctx, CompletionRequest{
		Purpose:     "test_evaluation",
		System:      gradeSystemPrompt,
		Prompt:      evaluationPrompt(course.Title, questions, aligned),
		Temperature: s.Policy().EvaluationTemperature,
		JSON:        true,
	})
	if err != nil {
		monitoring.TestEvaluations.WithLabelValues("error").Inc()
		return nil, util.WithDetails(util.ErrEvaluationFailure, "evaluation request failed", err)
	}

	evaluations, err := parseEvaluations(completion, questions)
	if err != nil {
		monitoring.TestEvaluations.WithLabelValues("error").Inc()
		logger.Log.Warn("Unusable evaluation output",
			zap.String("testId", test.ID),
			zap.Error(err))
		return nil, util.WithDetails(util.ErrEvaluationFailure, "evaluation output could not be read", err)
	}

	// 4. 计算得分与是否通过
	obtained := 0
	for _, ev := range evaluations {
		obtained += ev.MarksAwarded
	}
	score := ScorePercent(obtained, test.TotalMarks)
	passed := score >= test.PassingScore

	answersJSON, err := json.Marshal(aligned)
	if err != nil {
		return nil, err
	}
	evaluationsJSON, err := json.Marshal(evaluations)
	if err != nil {
		return nil, err
	}

	// 5. 条件更新，只有进行中的考试能被提交
	if err := s.TestRepo.Finalize(ctx, test.ID, repository.TestResult{
		Answers:       datatypes.JSON(answersJSON),
		Evaluations:   datatypes.JSON(evaluationsJSON),
		MarksObtained: obtained,
		Score:         score,
		HasPassed:     passed,
		SubmittedAt:   s.Clock(),
	}); err != nil {
		return nil, err
	}

	monitoring.TestEvaluations.WithLabelValues(passLabel(passed)).Inc()
	logger.Log.Info("Certification test submitted",
		zap.String("testId", test.ID),
		zap.Uint("userId", userID),
		zap.Int("score", score),
		zap.Bool("passed", passed))

	finalized, err := s.TestRepo.FindByID(ctx, test.ID)
	if err != nil {
		return nil, err
	}
	return NewTestView(finalized)
}

func passLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

// ListTests returns the learner's tests for a course, newest first.
func (s *CertificationService) ListTests(ctx context.Context, courseID, userID uint) ([]*TestView, error) {
	if _, err := ensureCourseAccess(ctx, s.CourseRepo, s.EnrollmentRepo, courseID, userID); err != nil {
		return nil, err
	}

	tests, err := s.TestRepo.ListForUser(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}

	views := make([]*TestView, 0, len(tests))
	for i := range tests {
		v, err := NewTestView(&tests[i])
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// CooldownStatus reports whether the learner may generate a new test now.
func (s *CertificationService) CooldownStatus(ctx context.Context, courseID, userID uint) (*util.CooldownStatus, error) {
	if _, err := ensureCourseAccess(ctx, s.CourseRepo, s.EnrollmentRepo, courseID, userID); err != nil {
		return nil, err
	}

	latest, err := s.TestRepo.FindLatest(ctx, courseID, userID)
	if errors.Is(err, util.ErrNotFound) {
		return &util.CooldownStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	if latest.Status == model.TestInProgress {
		return &util.CooldownStatus{}, nil
	}

	var cd *util.CooldownError
	if errors.As(s.checkCooldown(latest, s.Policy()), &cd) {
		return &util.CooldownStatus{
			IsActive:        true,
			RemainingHours:  cd.RemainingHours(),
			NextAvailableAt: cd.NextAvailableAt,
		}, nil
	}
	return &util.CooldownStatus{}, nil
}
