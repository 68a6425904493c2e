package service

import (
	"testing"

	"prepcourse_backend/internal/model"
)

func TestParseEvaluations_ClampsAndFillsGaps(t *testing.T) {
	questions := marksOf(5, 10, 8)
	raw := `Here you go: {"evaluations": [
		{"questionIndex": 0, "isCorrect": true, "marksAwarded": 9, "feedback": "too generous"},
		{"questionIndex": 2, "isCorrect": false, "marksAwarded": -3, "feedback": "negative"},
		{"questionIndex": 7, "isCorrect": true, "marksAwarded": 4},
	]}`

	evs, err := parseEvaluations(raw, questions)
	if err != nil {
		t.Fatalf("parseEvaluations: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("got %d evaluations, want one per question", len(evs))
	}
	if evs[0].MarksAwarded != 5 {
		t.Fatalf("marks above the maximum must clamp, got %d", evs[0].MarksAwarded)
	}
	if evs[1].MarksAwarded != 0 || evs[1].QuestionIndex != 1 || evs[1].Feedback == "" {
		t.Fatalf("ungraded question must get a zero evaluation, got %+v", evs[1])
	}
	if evs[2].MarksAwarded != 0 {
		t.Fatalf("negative marks must clamp to 0, got %d", evs[2].MarksAwarded)
	}
}

func TestParseEvaluations_Shapes(t *testing.T) {
	questions := marksOf(10, 10)
	cases := map[string]string{
		"bare array":       `[{"questionIndex":0,"marksAwarded":4},{"questionIndex":1,"marksAwarded":6}]`,
		"results wrapper":  `{"results":[{"questionIndex":0,"marksAwarded":4},{"questionIndex":1,"marksAwarded":6}]}`,
		"string numbers":   `{"evaluations":[{"questionIndex":"0","marksAwarded":"4"},{"questionIndex":"1","marksAwarded":"6"}]}`,
		"fractional marks": `{"evaluations":[{"questionIndex":0,"marksAwarded":3.6},{"questionIndex":1,"marksAwarded":5.5}]}`,
		"positional":       `{"evaluations":[{"marksAwarded":4},{"marksAwarded":6}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			evs, err := parseEvaluations(raw, questions)
			if err != nil {
				t.Fatalf("parseEvaluations: %v", err)
			}
			if evs[0].MarksAwarded+evs[1].MarksAwarded != 10 {
				t.Fatalf("awarded %d + %d, want 10", evs[0].MarksAwarded, evs[1].MarksAwarded)
			}
		})
	}
}

func TestParseEvaluations_Unusable(t *testing.T) {
	questions := []model.Question{{Type: model.QuestionMCQ, Marks: 5}}
	for _, raw := range []string{"", "no idea", `{"evaluations":[]}`, `[]`, `{"evaluations":[{"questionIndex":5}]}`} {
		if _, err := parseEvaluations(raw, questions); err == nil {
			t.Fatalf("%q: expected an error", raw)
		}
	}
}

func TestScorePercent(t *testing.T) {
	cases := []struct{ obtained, total, want int }{
		{82, 100, 82},
		{79, 100, 79},
		{1, 3, 33},
		{2, 3, 67},
		{0, 100, 0},
		{5, 0, 0},
		{94, 105, 90},
	}
	for _, tc := range cases {
		if got := ScorePercent(tc.obtained, tc.total); got != tc.want {
			t.Fatalf("ScorePercent(%d, %d) = %d, want %d", tc.obtained, tc.total, got, tc.want)
		}
	}
}

func TestParseEvaluations_FenceInsideFeedback(t *testing.T) {
	questions := marksOf(10, 10)
	raw := "{\n  \"evaluations\": [\n" +
		"    {\"questionIndex\": 0, \"marksAwarded\": 7, \"feedback\": \"Better: ```python\\nprint(1)\\n``` works\"},\n" +
		"    {\"questionIndex\": 1, \"marksAwarded\": 3, \"feedback\": \"ok\"}\n  ]\n}"

	evs, err := parseEvaluations(raw, questions)
	if err != nil {
		t.Fatalf("parseEvaluations: %v", err)
	}
	if evs[0].MarksAwarded != 7 || evs[1].MarksAwarded != 3 {
		t.Fatalf("evaluations = %+v", evs)
	}
	if evs[0].Feedback != "Better: ```python\nprint(1)\n``` works" {
		t.Fatalf("feedback mangled: %q", evs[0].Feedback)
	}
}
