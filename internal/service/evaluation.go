package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"prepcourse_backend/internal/model"
)

var errNoEvaluations = errors.New("completion has no evaluations")

type rawEvaluation struct {
	QuestionIndex json.RawMessage `json:"questionIndex"`
	IsCorrect     bool            `json:"isCorrect"`
	MarksAwarded  json.RawMessage `json:"marksAwarded"`
	Feedback      string          `json:"feedback"`
	Strengths     []string        `json:"strengths"`
	Improvements  []string        `json:"improvements"`
}

// parseEvaluations accepts {"evaluations":[...]}, {"results":[...]} or a bare
// array, and returns exactly one clamped evaluation per question.
func parseEvaluations(completion string, questions []model.Question) ([]model.Evaluation, error) {
	var payload json.RawMessage
	if err := LenientDecode(completion, &payload); err != nil {
		return nil, err
	}

	var list []rawEvaluation
	if trimmed := bytes.TrimSpace(payload); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
	} else {
		var wrapper struct {
			Evaluations []rawEvaluation `json:"evaluations"`
			Results     []rawEvaluation `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, err
		}
		list = wrapper.Evaluations
		if len(list) == 0 {
			list = wrapper.Results
		}
	}
	if len(list) == 0 {
		return nil, errNoEvaluations
	}

	byIndex := make(map[int]model.Evaluation, len(list))
	for pos, re := range list {
		idx, ok := coerceInt(re.QuestionIndex)
		if !ok {
			idx = pos
		}
		if idx < 0 || idx >= len(questions) {
			continue
		}
		if _, dup := byIndex[idx]; dup {
			continue
		}

		awarded, _ := coerceInt(re.MarksAwarded)
		awarded = clamp(awarded, 0, questions[idx].Marks)
		byIndex[idx] = model.Evaluation{
			QuestionIndex: idx,
			IsCorrect:     re.IsCorrect,
			MarksAwarded:  awarded,
			Feedback:      strings.TrimSpace(re.Feedback),
			Strengths:     re.Strengths,
			Improvements:  re.Improvements,
		}
	}
	if len(byIndex) == 0 {
		return nil, errNoEvaluations
	}

	evaluations := make([]model.Evaluation, len(questions))
	for i := range questions {
		if ev, ok := byIndex[i]; ok {
			evaluations[i] = ev
			continue
		}
		evaluations[i] = model.Evaluation{
			QuestionIndex: i,
			Feedback:      "This question was not graded and received no marks.",
		}
	}
	return evaluations, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ScorePercent returns round(obtained/total*100), or 0 for a non-positive total.
func ScorePercent(obtained, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(obtained) / float64(total) * 100))
}
