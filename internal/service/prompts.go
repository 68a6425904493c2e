package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"prepcourse_backend/internal/model"
)

const (
	outlineSystemPrompt = "You are an expert curriculum designer. You respond with valid JSON only."
	contentSystemPrompt = "You are an expert educator who writes clear, well structured course material in Markdown."
	testSystemPrompt    = "You are an expert examiner who writes fair certification tests. You respond with valid JSON only."
	gradeSystemPrompt   = "You are a strict but fair examiner grading a certification test. You respond with valid JSON only."
)

func outlinePrompt(topic string) string {
	return fmt.Sprintf(`Create a complete course outline for the topic: "%s".

Respond with a JSON object of this exact shape:
{
  "title": "course title",
  "description": "two or three sentence course description",
  "chapters": [
    {"title": "chapter title", "description": "what the chapter covers", "order_index": 0}
  ]
}

Rules:
- Between 5 and 12 chapters, ordered from fundamentals to advanced material.
- order_index starts at 0 and increases by 1.
- No text outside the JSON object.`, topic)
}

func chapterContentPrompt(chapterTitle, courseTitle, chapterDescription string) string {
	return fmt.Sprintf(`Write the full content of the chapter "%s" of the course "%s".

Chapter summary: %s

Structure the chapter with Markdown headings: an introduction, the core concepts with
explanations, worked examples (with code blocks where relevant), common mistakes,
and a short summary with key takeaways.`, chapterTitle, courseTitle, chapterDescription)
}

// truncateRunes cuts s to at most n characters without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// courseContext concatenates chapter titles and content in order. The budget is
// shared equally between chapters with content.
func courseContext(chapters []model.Chapter, budget int) string {
	var withContent []model.Chapter
	for _, ch := range chapters {
		if ch.HasContent() {
			withContent = append(withContent, ch)
		}
	}
	if len(withContent) == 0 {
		return ""
	}

	per := budget / len(withContent)
	var b strings.Builder
	for i, ch := range withContent {
		fmt.Fprintf(&b, "## Chapter %d: %s\n", i+1, ch.Title)
		b.WriteString(truncateRunes(*ch.Content, per))
		b.WriteString("\n\n")
	}
	return b.String()
}

func testGenerationPrompt(courseTitle, context string) string {
	return fmt.Sprintf(`Create a certification test for the course "%s" based only on the material below.

COURSE MATERIAL:
%s

Requirements:
- Between 15 and 20 questions covering all chapters.
- Use all five question types: "mcq", "true_false", "short_answer", "coding", "situational".
- "mcq": exactly 4 options, "correctAnswer" is the 0-based index of the right option.
- "true_false": options exactly ["True","False"], "correctAnswer" is 0 for True or 1 for False.
- Every other type: "options" is an empty list and "correctAnswer" is null.
- Each question has positive integer "marks"; all marks together total about 100.
- "difficulty" is one of "easy", "medium", "hard".

Respond with a JSON object of this exact shape:
{
  "questions": [
    {
      "type": "mcq",
      "question": "question text",
      "options": ["A", "B", "C", "D"],
      "correctAnswer": 0,
      "marks": 5,
      "difficulty": "medium",
      "topic": "chapter or concept being tested",
      "sampleAnswer": "model answer",
      "keyPoints": ["point the answer must cover"],
      "explanation": "why the answer is correct"
    }
  ]
}`, courseTitle, context)
}

func evaluationPrompt(courseTitle string, questions []model.Question, answers []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Grade the following answers to the certification test of the course \"%s\".\n\n", courseTitle)

	for i, q := range questions {
		fmt.Fprintf(&b, "QUESTION %d (index %d)\n", i+1, i)
		fmt.Fprintf(&b, "Type: %s\n", q.Type)
		fmt.Fprintf(&b, "Marks: %d\n", q.Marks)
		fmt.Fprintf(&b, "Question: %s\n", q.Question)
		if q.HasChoices() {
			fmt.Fprintf(&b, "Options: %s\n", strings.Join(q.Options, " | "))
			fmt.Fprintf(&b, "Correct answer: %s\n", q.CorrectOption())
		}
		if q.SampleAnswer != "" {
			fmt.Fprintf(&b, "Sample answer: %s\n", q.SampleAnswer)
		}
		if len(q.KeyPoints) > 0 {
			fmt.Fprintf(&b, "Key points: %s\n", strings.Join(q.KeyPoints, "; "))
		}
		fmt.Fprintf(&b, "Learner answer: %s\n\n", answerAt(answers, i))
	}

	b.WriteString(`Grading rules:
- mcq and true_false: full marks when the learner answer matches the correct answer, otherwise 0.
- Other types: award partial marks for the key points covered; 0 for an empty answer.
- marksAwarded is an integer between 0 and the question's marks.

Respond with a JSON object of this exact shape:
{
  "evaluations": [
    {
      "questionIndex": 0,
      "isCorrect": true,
      "marksAwarded": 5,
      "feedback": "short feedback",
      "strengths": ["..."],
      "improvements": ["..."]
    }
  ]
}`)
	return b.String()
}

func answerAt(answers []string, i int) string {
	if i < len(answers) {
		return strings.TrimSpace(answers[i])
	}
	return ""
}
