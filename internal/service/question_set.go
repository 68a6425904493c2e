package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"prepcourse_backend/internal/config"
	"prepcourse_backend/internal/model"
)

const (
	minNormalTotal    = 50
	maxNormalTotal    = 150
	normalizedTotal   = 100
	fallbackQuestions = 15
)

var trueFalseOptions = []string{"True", "False"}

var defaultMarks = map[model.QuestionType]int{
	model.QuestionMCQ:         5,
	model.QuestionTrueFalse:   3,
	model.QuestionShortAnswer: 8,
	model.QuestionCoding:      15,
	model.QuestionSituational: 10,
}

// QuestionSet is the outcome of test generation. Source is SourceFallback when
// the completion could not be used; FallbackReason then says why.
type QuestionSet struct {
	Questions      []model.Question
	TotalMarks     int
	Source         model.QuestionSource
	FallbackReason string
}

type rawQuestion struct {
	Type          string          `json:"type"`
	Question      string          `json:"question"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
	Marks         json.RawMessage `json:"marks"`
	Difficulty    string          `json:"difficulty"`
	Topic         string          `json:"topic"`
	SampleAnswer  string          `json:"sampleAnswer"`
	KeyPoints     []string        `json:"keyPoints"`
	Explanation   string          `json:"explanation"`
}

type rawQuestionSet struct {
	Questions []rawQuestion `json:"questions"`
}

// parseQuestionSet decodes and repairs a generation completion. It reports the
// reason the completion is unusable instead of an error.
func parseQuestionSet(completion string, minQuestions int) ([]model.Question, string) {
	var raw rawQuestionSet
	if err := LenientDecode(completion, &raw); err != nil {
		return nil, err.Error()
	}
	if raw.Questions == nil {
		return nil, "completion has no questions list"
	}

	questions := make([]model.Question, 0, len(raw.Questions))
	for _, rq := range raw.Questions {
		if q, ok := repairQuestion(rq); ok {
			questions = append(questions, q)
		}
	}
	if len(questions) < minQuestions {
		return nil, fmt.Sprintf("only %d usable questions, need %d", len(questions), minQuestions)
	}
	return questions, ""
}

func normalizeType(t string) (model.QuestionType, bool) {
	s := strings.ToLower(strings.TrimSpace(t))
	s = strings.NewReplacer("-", "_", " ", "_", "/", "_").Replace(s)
	switch s {
	case "mcq", "multiple_choice", "multiplechoice", "single_choice":
		return model.QuestionMCQ, true
	case "true_false", "truefalse", "boolean":
		return model.QuestionTrueFalse, true
	case "short_answer", "shortanswer", "short":
		return model.QuestionShortAnswer, true
	case "coding", "code", "programming":
		return model.QuestionCoding, true
	case "situational", "scenario", "scenario_based":
		return model.QuestionSituational, true
	}
	return "", false
}

// repairQuestion enforces the per-type shape; ok is false when the question cannot be salvaged.
func repairQuestion(rq rawQuestion) (model.Question, bool) {
	qt, ok := normalizeType(rq.Type)
	text := strings.TrimSpace(rq.Question)
	if !ok || text == "" {
		return model.Question{}, false
	}

	q := model.Question{
		Type:         qt,
		Question:     text,
		Difficulty:   strings.ToLower(strings.TrimSpace(rq.Difficulty)),
		Topic:        strings.TrimSpace(rq.Topic),
		SampleAnswer: strings.TrimSpace(rq.SampleAnswer),
		KeyPoints:    rq.KeyPoints,
		Explanation:  strings.TrimSpace(rq.Explanation),
	}
	if q.Difficulty == "" {
		q.Difficulty = "medium"
	}
	if q.KeyPoints == nil {
		q.KeyPoints = []string{}
	}

	switch qt {
	case model.QuestionMCQ:
		if len(rq.Options) != 4 {
			return model.Question{}, false
		}
		idx, ok := choiceIndex(rq.CorrectAnswer, rq.Options)
		if !ok {
			return model.Question{}, false
		}
		q.Options = rq.Options
		q.CorrectAnswer = &idx
	case model.QuestionTrueFalse:
		idx, ok := choiceIndex(rq.CorrectAnswer, trueFalseOptions)
		if !ok {
			return model.Question{}, false
		}
		q.Options = append([]string(nil), trueFalseOptions...)
		q.CorrectAnswer = &idx
	default:
		q.Options = nil
		q.CorrectAnswer = nil
	}

	marks, ok := coerceInt(rq.Marks)
	if !ok || marks <= 0 {
		marks = defaultMarks[qt]
	}
	q.Marks = marks
	return q, true
}

// choiceIndex accepts an index, a boolean (true_false), an option letter, or the option text.
func choiceIndex(raw json.RawMessage, options []string) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if len(options) != 2 {
			return 0, false
		}
		if b {
			return 0, true
		}
		return 1, true
	}

	if n, ok := coerceInt(raw); ok {
		if n >= 0 && n < len(options) {
			return n, true
		}
		return 0, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	for i, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), s) {
			return i, true
		}
	}
	if len(s) == 1 {
		letter := strings.ToUpper(s)[0]
		if letter >= 'A' && int(letter-'A') < len(options) {
			return int(letter - 'A'), true
		}
	}
	return 0, false
}

// coerceInt reads a JSON number or a numeric string, rounding fractions.
func coerceInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(math.Round(f)), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return int(math.Round(v)), true
		}
	}
	return 0, false
}

// FallbackQuestionSet builds a deterministic test from chapter titles, cycling
// mcq, true_false and short_answer. Its marks always total 100.
func FallbackQuestionSet(chapterTitles []string) []model.Question {
	titles := chapterTitles
	if len(titles) == 0 {
		titles = []string{"the course material"}
	}

	questions := make([]model.Question, 0, fallbackQuestions)
	for i := 0; i < fallbackQuestions; i++ {
		title := titles[i%len(titles)]
		switch i % 3 {
		case 0:
			correct := 0
			questions = append(questions, model.Question{
				Type:     model.QuestionMCQ,
				Question: fmt.Sprintf("Which statement best describes the purpose of \"%s\"?", title),
				Options: []string{
					fmt.Sprintf("It builds an understanding of the core ideas of %s", title),
					"It is unrelated to the rest of the course",
					"It only covers historical background with no practical use",
					"It is optional material that is never applied",
				},
				CorrectAnswer: &correct,
				Marks:         5,
				Difficulty:    "easy",
				Topic:         title,
				SampleAnswer:  fmt.Sprintf("It builds an understanding of the core ideas of %s", title),
				KeyPoints:     []string{fmt.Sprintf("Purpose of %s", title)},
				Explanation:   fmt.Sprintf("The chapter \"%s\" introduces concepts that later chapters build on.", title),
			})
		case 1:
			correct := 0
			questions = append(questions, model.Question{
				Type:          model.QuestionTrueFalse,
				Question:      fmt.Sprintf("The concepts covered in \"%s\" can be applied to practical problems.", title),
				Options:       append([]string(nil), trueFalseOptions...),
				CorrectAnswer: &correct,
				Marks:         5,
				Difficulty:    "easy",
				Topic:         title,
				SampleAnswer:  "True",
				KeyPoints:     []string{fmt.Sprintf("Applying %s", title)},
				Explanation:   fmt.Sprintf("Every chapter, including \"%s\", is meant to be applied in practice.", title),
			})
		default:
			questions = append(questions, model.Question{
				Type:         model.QuestionShortAnswer,
				Question:     fmt.Sprintf("Explain the key ideas of \"%s\" in your own words and give one example.", title),
				Marks:        10,
				Difficulty:   "medium",
				Topic:        title,
				SampleAnswer: fmt.Sprintf("A clear explanation of the main concepts in %s with a relevant example.", title),
				KeyPoints: []string{
					fmt.Sprintf("Main concepts of %s", title),
					"A concrete, correct example",
				},
				Explanation: "Answers are graded on accuracy, clarity and the quality of the example.",
			})
		}
	}
	return questions
}

// NormalizeMarks keeps totals within [50,150] and otherwise rescales to exactly
// 100, absorbing rounding error in the last question. When the last question
// cannot absorb a deficit without dropping below the floor, the remainder moves
// to earlier questions. Returns the final total.
func NormalizeMarks(questions []model.Question) int {
	sum := 0
	for _, q := range questions {
		sum += q.Marks
	}
	if len(questions) == 0 || sum <= 0 {
		return sum
	}
	if sum >= minNormalTotal && sum <= maxNormalTotal {
		return sum
	}

	floor := 1
	if len(questions) > normalizedTotal {
		floor = 0
	}

	scaled := 0
	for i := range questions {
		m := int(math.Round(float64(questions[i].Marks) * normalizedTotal / float64(sum)))
		if m < floor {
			m = floor
		}
		questions[i].Marks = m
		scaled += m
	}

	residual := normalizedTotal - scaled
	last := len(questions) - 1
	if residual >= 0 {
		questions[last].Marks += residual
		return normalizedTotal
	}

	deficit := -residual
	for i := last; i >= 0 && deficit > 0; i-- {
		room := questions[i].Marks - floor
		if room <= 0 {
			continue
		}
		take := room
		if take > deficit {
			take = deficit
		}
		questions[i].Marks -= take
		deficit -= take
	}
	return normalizedTotal
}

func buildInstructions(questions []model.Question, totalMarks int, policy config.AssessmentConfig) model.TestInstructions {
	seen := make(map[model.QuestionType]bool)
	var types []string
	for _, q := range questions {
		if !seen[q.Type] {
			seen[q.Type] = true
			types = append(types, string(q.Type))
		}
	}

	return model.TestInstructions{
		Duration:       policy.TimeLimitMinutes,
		PassingScore:   policy.PassingScore,
		TotalQuestions: len(questions),
		TotalMarks:     totalMarks,
		QuestionTypes:  types,
		Instructions: []string{
			fmt.Sprintf("You have %d minutes to complete this test.", policy.TimeLimitMinutes),
			fmt.Sprintf("The test has %d questions worth %d marks in total.", len(questions), totalMarks),
			fmt.Sprintf("You need at least %d%% to pass and earn the course certificate.", policy.PassingScore),
			"Multiple choice and true/false questions have exactly one correct option.",
			"Written and coding answers are graded on correctness, completeness and clarity.",
			"Answers are submitted once; a submitted test cannot be changed.",
			fmt.Sprintf("A new test can be generated %d hours after the previous one.", policy.CooldownHours),
		},
	}
}
