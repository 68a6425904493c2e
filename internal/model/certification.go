package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type TestStatus string

const (
	TestInProgress TestStatus = "in_progress"
	TestCompleted  TestStatus = "completed"
)

type QuestionType string

const (
	QuestionMCQ         QuestionType = "mcq"
	QuestionTrueFalse   QuestionType = "true_false"
	QuestionShortAnswer QuestionType = "short_answer"
	QuestionCoding      QuestionType = "coding"
	QuestionSituational QuestionType = "situational"
)

// QuestionSource records whether the question set came from the model or the local fallback.
type QuestionSource string

const (
	SourceLLM      QuestionSource = "llm"
	SourceFallback QuestionSource = "fallback"
)

type Question struct {
	Type          QuestionType `json:"type"`
	Question      string       `json:"question"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer *int         `json:"correctAnswer"`
	Marks         int          `json:"marks"`
	Difficulty    string       `json:"difficulty"`
	Topic         string       `json:"topic"`
	SampleAnswer  string       `json:"sampleAnswer"`
	KeyPoints     []string     `json:"keyPoints"`
	Explanation   string       `json:"explanation"`
}

// HasChoices reports whether the question is graded against an option index.
func (q Question) HasChoices() bool {
	return q.Type == QuestionMCQ || q.Type == QuestionTrueFalse
}

// CorrectOption resolves the correct answer text from the options list.
func (q Question) CorrectOption() string {
	if !q.HasChoices() || q.CorrectAnswer == nil {
		return ""
	}
	i := *q.CorrectAnswer
	if i < 0 || i >= len(q.Options) {
		return ""
	}
	return q.Options[i]
}

type Evaluation struct {
	QuestionIndex int      `json:"questionIndex"`
	IsCorrect     bool     `json:"isCorrect"`
	MarksAwarded  int      `json:"marksAwarded"`
	Feedback      string   `json:"feedback"`
	Strengths     []string `json:"strengths,omitempty"`
	Improvements  []string `json:"improvements,omitempty"`
}

type TestInstructions struct {
	Duration       int      `json:"duration"`
	PassingScore   int      `json:"passingScore"`
	TotalQuestions int      `json:"totalQuestions"`
	TotalMarks     int      `json:"totalMarks"`
	QuestionTypes  []string `json:"questionTypes"`
	Instructions   []string `json:"instructions"`
}

// CourseTest is one certification attempt of a user for a course.
// Score fields, answers, evaluations and SubmittedAt are all nil while in progress
// and all set once completed.
type CourseTest struct {
	UUIDBase
	CourseID          uint           `gorm:"not null;index:idx_test_course_user" json:"courseId"`
	UserID            uint           `gorm:"not null;index:idx_test_course_user" json:"userId"`
	Questions         datatypes.JSON `json:"-"`
	Instructions      datatypes.JSON `json:"-"`
	Answers           datatypes.JSON `json:"-"`
	EvaluationResults datatypes.JSON `json:"-"`
	TimeLimit         int            `gorm:"not null" json:"timeLimit"`
	PassingScore      int            `gorm:"not null" json:"passingScore"`
	TotalMarks        int            `gorm:"not null" json:"totalMarks"`
	MarksObtained     *int           `json:"marksObtained"`
	Score             *int           `json:"score"`
	HasPassed         *bool          `json:"hasPassed"`
	Status            TestStatus     `gorm:"size:20;not null;index" json:"status"`
	QuestionSource    QuestionSource `gorm:"size:20" json:"questionSource"`
	// ActiveKey is "<courseId>:<userId>" while in progress and NULL afterwards;
	// its unique index allows at most one in-progress test per pair.
	ActiveKey   *string    `gorm:"size:64;uniqueIndex" json:"-"`
	SubmittedAt *time.Time `json:"submittedAt"`
}

func (CourseTest) TableName() string {
	return "course_tests"
}

func ActiveKeyFor(courseID, userID uint) string {
	return fmt.Sprintf("%d:%d", courseID, userID)
}

func (t *CourseTest) IsCompleted() bool {
	return t.Status == TestCompleted
}

func (t *CourseTest) Passed() bool {
	return t.IsCompleted() && t.HasPassed != nil && *t.HasPassed
}

func (t *CourseTest) ParsedQuestions() ([]Question, error) {
	var qs []Question
	if len(t.Questions) == 0 {
		return qs, nil
	}
	if err := json.Unmarshal(t.Questions, &qs); err != nil {
		return nil, fmt.Errorf("decode questions of test %s: %w", t.ID, err)
	}
	return qs, nil
}

func (t *CourseTest) ParsedInstructions() (*TestInstructions, error) {
	var ins TestInstructions
	if len(t.Instructions) == 0 {
		return &ins, nil
	}
	if err := json.Unmarshal(t.Instructions, &ins); err != nil {
		return nil, fmt.Errorf("decode instructions of test %s: %w", t.ID, err)
	}
	return &ins, nil
}

func (t *CourseTest) ParsedAnswers() ([]string, error) {
	var answers []string
	if len(t.Answers) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(t.Answers, &answers); err != nil {
		return nil, fmt.Errorf("decode answers of test %s: %w", t.ID, err)
	}
	return answers, nil
}

func (t *CourseTest) ParsedEvaluations() ([]Evaluation, error) {
	var evs []Evaluation
	if len(t.EvaluationResults) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(t.EvaluationResults, &evs); err != nil {
		return nil, fmt.Errorf("decode evaluations of test %s: %w", t.ID, err)
	}
	return evs, nil
}
