package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"prepcourse_backend/internal/config"
	"prepcourse_backend/internal/model"
	"prepcourse_backend/internal/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeCompleter answers by request purpose and counts calls.
type fakeCompleter struct {
	mu       sync.Mutex
	handlers map[string]func(CompletionRequest) (string, error)
	calls    map[string]int
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{
		handlers: make(map[string]func(CompletionRequest) (string, error)),
		calls:    make(map[string]int),
	}
}

func (f *fakeCompleter) on(purpose string, h func(CompletionRequest) (string, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[purpose] = h
}

func (f *fakeCompleter) reply(purpose, content string) {
	f.on(purpose, func(CompletionRequest) (string, error) { return content, nil })
}

func (f *fakeCompleter) count(purpose string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[purpose]
}

func (f *fakeCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls[req.Purpose]++
	h := f.handlers[req.Purpose]
	f.mu.Unlock()
	if h == nil {
		return "", fmt.Errorf("no reply scripted for %q", req.Purpose)
	}
	return h(req)
}

// questionsJSON returns n well-formed questions of the given marks, cycling mcq, true_false and short_answer.
func questionsJSON(n, marks int) string {
	qs := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		q := map[string]any{
			"question":     fmt.Sprintf("Question %d?", i+1),
			"marks":        marks,
			"difficulty":   "medium",
			"topic":        "Graphs",
			"sampleAnswer": "sample",
			"keyPoints":    []string{"point"},
			"explanation":  "because",
		}
		switch i % 3 {
		case 0:
			q["type"] = "mcq"
			q["options"] = []string{"A", "B", "C", "D"}
			q["correctAnswer"] = 1
		case 1:
			q["type"] = "true_false"
			q["options"] = []string{"True", "False"}
			q["correctAnswer"] = 0
		default:
			q["type"] = "short_answer"
			q["options"] = []string{}
			q["correctAnswer"] = nil
		}
		qs = append(qs, q)
	}
	b, _ := json.Marshal(map[string]any{"questions": qs})
	return string(b)
}

func evaluationsJSON(awards []int) string {
	evs := make([]map[string]any, 0, len(awards))
	for i, a := range awards {
		evs = append(evs, map[string]any{
			"questionIndex": i,
			"isCorrect":     a > 0,
			"marksAwarded":  a,
			"feedback":      "ok",
		})
	}
	b, _ := json.Marshal(map[string]any{"evaluations": evs})
	return string(b)
}

func strPtr(s string) *string { return &s }

type fixture struct {
	db       *gorm.DB
	ai       *fakeCompleter
	author   *model.User
	learner  *model.User
	outsider *model.User
	course   *model.Course
	now      time.Time

	courses     *repository.CourseRepository
	enrollments *repository.EnrollmentRepository
	tests       *repository.CourseTestRepository
	users       *repository.UserRepository

	certification *CertificationService
	certificates  *CertificateService
}

// newFixture seeds "Intro to Graphs" with three written chapters and an enrolled learner.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := newTestDB(t)

	f := &fixture{
		db:          db,
		ai:          newFakeCompleter(),
		now:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		courses:     repository.NewCourseRepository(db),
		enrollments: repository.NewEnrollmentRepository(db),
		tests:       repository.NewCourseTestRepository(db),
		users:       repository.NewUserRepository(db),
	}

	mkUser := func(name string, role model.UserRole) *model.User {
		u := &model.User{Name: name, Email: strings.ToLower(name) + "@example.com", Password: "x", Role: role}
		if err := f.users.Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
		return u
	}
	f.author = mkUser("Author", model.Author)
	f.learner = mkUser("Learner", model.Student)
	f.outsider = mkUser("Outsider", model.Student)

	f.course = &model.Course{Title: "Intro to Graphs", AuthorID: f.author.ID, IsPublic: true}
	chapters := []model.Chapter{
		{Title: "Intro", Content: strPtr("Graphs are vertices and edges."), OrderIndex: 0},
		{Title: "Loops", Content: strPtr("Cycles appear when a path returns to its start."), OrderIndex: 1},
		{Title: "Recursion", Content: strPtr("Depth-first search is naturally recursive."), OrderIndex: 2},
	}
	if err := f.courses.CreateWithChapters(ctx, f.course, chapters); err != nil {
		t.Fatalf("create course: %v", err)
	}
	if _, err := f.enrollments.Enroll(ctx, f.course.ID, f.learner.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	cfg := config.Defaults()
	f.certification = NewCertificationService(f.courses, f.enrollments, f.tests, f.ai, NewLocalLocker(), cfg)
	f.certification.Clock = func() time.Time { return f.now }
	f.certificates = NewCertificateService(f.courses, f.users, f.tests)
	return f
}

func testResult(score int, at time.Time) repository.TestResult {
	return repository.TestResult{
		Answers:       []byte(`[]`),
		Evaluations:   []byte(`[]`),
		MarksObtained: score,
		Score:         score,
		HasPassed:     score >= 80,
		SubmittedAt:   at,
	}
}
