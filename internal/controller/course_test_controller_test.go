package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"prepcourse_backend/internal/config"
	"prepcourse_backend/internal/middleware"
	"prepcourse_backend/internal/model"
	"prepcourse_backend/internal/repository"
	"prepcourse_backend/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// scriptedAI answers every purpose with a fixed completion.
type scriptedAI map[string]string

func (s scriptedAI) Complete(_ context.Context, req service.CompletionRequest) (string, error) {
	out, ok := s[req.Purpose]
	if !ok {
		return "", fmt.Errorf("unexpected completion %q", req.Purpose)
	}
	return out, nil
}

type testServer struct {
	router *gin.Engine
	cfg    *config.Config
	db     *gorm.DB
}

func newTestServer(t *testing.T, ai service.Completer) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Defaults()
	cfg.JWT.Secret = "controller-test-secret"
	cfg.JWT.ExpireTime = time.Hour

	courses := repository.NewCourseRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	tests := repository.NewCourseTestRepository(db)
	users := repository.NewUserRepository(db)

	auth := NewAuthController(service.NewAuthService(users, cfg))
	course := NewCourseController(service.NewCourseService(courses, enrollments, service.NewContentGenerator(ai), service.NewDirectViewCounter(courses)))
	courseTest := NewCourseTestController(
		service.NewCertificationService(courses, enrollments, tests, ai, service.NewLocalLocker(), cfg),
		service.NewCertificateService(courses, users, tests),
	)

	r := gin.New()
	api := r.Group("/api/v1")
	api.POST("/auth/register", auth.Register)
	api.POST("/auth/login", auth.Login)
	api.GET("/courses/verify-certificate/:certificateId", courseTest.VerifyCertificate)

	protected := r.Group("/api/v1", middleware.AuthMiddleware(cfg))
	protected.POST("/courses/generate", middleware.RoleMiddleware(model.Author), course.GenerateCourse)
	protected.POST("/courses/:courseId/enroll", course.Enroll)
	protected.POST("/courses/:courseId/chapters/:chapterId/generate", course.GenerateChapterContent)
	protected.GET("/courses/:courseId/test/cooldown", courseTest.CooldownStatus)
	protected.POST("/courses/:courseId/test/generate", courseTest.GenerateTest)
	protected.POST("/courses/:courseId/test/:testId/submit", courseTest.SubmitTest)
	protected.GET("/courses/:courseId/test/:testId/certificate", courseTest.GetCertificate)

	return &testServer{router: r, cfg: cfg, db: db}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]any
	json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func (s *testServer) login(t *testing.T, name, role string) string {
	t.Helper()
	email := strings.ToLower(name) + "@example.com"
	w, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "correct-horse", "role": role,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", name, w.Code, w.Body.String())
	}
	w, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": "correct-horse"})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", name, w.Code, w.Body.String())
	}
	return body["data"].(map[string]any)["token"].(string)
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func tenQuestions() string {
	qs := make([]map[string]any, 10)
	for i := range qs {
		qs[i] = map[string]any{
			"type": "short_answer", "question": fmt.Sprintf("Q%d?", i+1), "marks": 10,
			"sampleAnswer": "a", "keyPoints": []string{"k"}, "explanation": "e",
		}
	}
	b, _ := json.Marshal(map[string]any{"questions": qs})
	return string(b)
}

func fullMarks() string {
	evs := make([]map[string]any, 10)
	for i := range evs {
		evs[i] = map[string]any{"questionIndex": i, "isCorrect": true, "marksAwarded": 10, "feedback": "good"}
	}
	b, _ := json.Marshal(map[string]any{"evaluations": evs})
	return string(b)
}

func TestCertificationFlow(t *testing.T) {
	ai := scriptedAI{
		"outline":         `{"title":"Sorting","description":"d","chapters":[{"title":"Quicksort","description":"q","order_index":0}]}`,
		"chapter_content": "Quicksort partitions around a pivot.",
		"test_generation": tenQuestions(),
		"test_evaluation": fullMarks(),
	}
	s := newTestServer(t, ai)
	author := s.login(t, "Author", "author")
	learner := s.login(t, "Learner", "student")

	// students cannot author courses
	if w, _ := s.do(t, http.MethodPost, "/api/v1/courses/generate", learner, map[string]any{"topic": "Sorting"}); w.Code != http.StatusForbidden {
		t.Fatalf("student generate: %d", w.Code)
	}

	w, body := s.do(t, http.MethodPost, "/api/v1/courses/generate", author, map[string]any{"topic": "Sorting", "isPublic": true})
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("generate course: %d %s", w.Code, w.Body.String())
	}
	course := data(body)
	courseID := int(course["id"].(float64))
	chapterID := int(course["chapters"].([]any)[0].(map[string]any)["id"].(float64))
	base := fmt.Sprintf("/api/v1/courses/%d", courseID)

	if w, _ := s.do(t, http.MethodPost, base+"/enroll", learner, nil); w.Code != http.StatusOK {
		t.Fatalf("enroll: %d %s", w.Code, w.Body.String())
	}

	// no chapter content yet
	if w, _ := s.do(t, http.MethodPost, base+"/test/generate", learner, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("generate without content: %d %s", w.Code, w.Body.String())
	}

	if w, _ := s.do(t, http.MethodPost, fmt.Sprintf("%s/chapters/%d/generate", base, chapterID), author, nil); w.Code != http.StatusOK {
		t.Fatalf("chapter content: %d %s", w.Code, w.Body.String())
	}

	w, body = s.do(t, http.MethodPost, base+"/test/generate", learner, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("generate test: %d %s", w.Code, w.Body.String())
	}
	test := data(body)
	testID := test["id"].(string)
	if test["status"] != "in_progress" || len(test["questions"].([]any)) != 10 || test["totalMarks"].(float64) != 100 {
		t.Fatalf("test = %v", test)
	}

	w, body = s.do(t, http.MethodPost, base+"/test/"+testID+"/submit", learner, map[string]any{"answers": make([]string, 10)})
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	if got := data(body); got["score"].(float64) != 100 || got["hasPassed"] != true {
		t.Fatalf("result = %v", got)
	}

	if w, _ := s.do(t, http.MethodPost, base+"/test/"+testID+"/submit", learner, map[string]any{"answers": []string{}}); w.Code != http.StatusBadRequest {
		t.Fatalf("second submit: %d", w.Code)
	}

	w, body = s.do(t, http.MethodPost, base+"/test/generate", learner, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("generate during cooldown: %d %s", w.Code, w.Body.String())
	}
	cooldown, _ := body["cooldown"].(map[string]any)
	if cooldown == nil || cooldown["isActive"] != true || cooldown["remainingHours"].(float64) != 24 {
		t.Fatalf("cooldown = %v", body)
	}

	w, body = s.do(t, http.MethodGet, base+"/test/cooldown", learner, nil)
	if w.Code != http.StatusOK || data(body)["isActive"] != true {
		t.Fatalf("cooldown status: %d %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodGet, base+"/test/"+testID+"/certificate", learner, nil)
	if w.Code != http.StatusOK || data(body)["learnerName"] != "Learner" || data(body)["courseTitle"] != "Sorting" {
		t.Fatalf("certificate: %d %v", w.Code, body)
	}
	if w, _ := s.do(t, http.MethodGet, base+"/test/"+testID+"/certificate", author, nil); w.Code != http.StatusForbidden {
		t.Fatalf("certificate for another user: %d", w.Code)
	}

	w, body = s.do(t, http.MethodGet, "/api/v1/courses/verify-certificate/"+testID, "", nil)
	if w.Code != http.StatusOK || data(body)["isValid"] != true {
		t.Fatalf("verify: %d %v", w.Code, body)
	}
	w, body = s.do(t, http.MethodGet, "/api/v1/courses/verify-certificate/unknown", "", nil)
	if w.Code != http.StatusOK || data(body)["isValid"] != false {
		t.Fatalf("verify unknown: %d %v", w.Code, body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, scriptedAI{})

	if w, _ := s.do(t, http.MethodPost, "/api/v1/courses/1/test/generate", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", w.Code)
	}
	if w, _ := s.do(t, http.MethodPost, "/api/v1/courses/1/test/generate", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", w.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t, scriptedAI{})

	cases := []map[string]string{
		{"name": "   ", "email": "a@example.com", "password": "correct-horse"},
		{"name": "A", "email": "not-an-email", "password": "correct-horse"},
		{"name": "A", "email": "a@example.com", "password": "short"},
		{"name": "A", "email": "a@example.com", "password": "correct-horse", "role": "admin"},
	}
	for _, body := range cases {
		if w, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", body); w.Code != http.StatusBadRequest {
			t.Fatalf("%v: status %d", body, w.Code)
		}
	}

	s.login(t, "Dup", "")
	w, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Dup", "email": "dup@example.com", "password": "correct-horse",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate email: %d", w.Code)
	}
}
