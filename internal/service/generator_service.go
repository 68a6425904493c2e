package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"prepcourse_backend/internal/util"
)

const (
	outlineTemperature = 0.7
	contentTemperature = 0.7
)

type OutlineChapter struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	OrderIndex  *int   `json:"order_index,omitempty"`
}

type Outline struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Chapters    []OutlineChapter `json:"chapters"`
}

// ContentGenerator produces course outlines and chapter text.
type ContentGenerator struct {
	AI Completer
}

func NewContentGenerator(ai Completer) *ContentGenerator {
	return &ContentGenerator{AI: ai}
}

func (g *ContentGenerator) GenerateOutline(ctx context.Context, topic string) (*Outline, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	completion, err := g.AI.Complete(ctx, CompletionRequest{
		Purpose:     "outline",
		System:      outlineSystemPrompt,
		Prompt:      outlinePrompt(topic),
		Temperature: outlineTemperature,
		JSON:        true,
	})
	if err != nil {
		return nil, util.WithDetails(util.ErrGenerationFailure, "outline completion failed", err)
	}

	var outline Outline
	if err := LenientDecode(completion, &outline); err != nil {
		return nil, util.WithDetails(util.ErrGenerationFailure, "outline is not valid JSON", err)
	}

	outline.Title = strings.TrimSpace(outline.Title)
	if outline.Title == "" {
		outline.Title = topic
	}
	outline.Chapters = orderChapters(outline.Chapters)
	if len(outline.Chapters) == 0 {
		return nil, util.WithDetails(util.ErrGenerationFailure, "outline has no chapters", nil)
	}
	return &outline, nil
}

// orderChapters drops untitled chapters and renumbers order_index 0..n-1. The
// model's ordering is kept when every index is present and distinct.
func orderChapters(in []OutlineChapter) []OutlineChapter {
	out := make([]OutlineChapter, 0, len(in))
	for _, ch := range in {
		ch.Title = strings.TrimSpace(ch.Title)
		if ch.Title == "" {
			continue
		}
		ch.Description = strings.TrimSpace(ch.Description)
		out = append(out, ch)
	}

	seen := make(map[int]bool, len(out))
	usable := true
	for _, ch := range out {
		if ch.OrderIndex == nil || seen[*ch.OrderIndex] {
			usable = false
			break
		}
		seen[*ch.OrderIndex] = true
	}
	if usable {
		sort.SliceStable(out, func(i, j int) bool { return *out[i].OrderIndex < *out[j].OrderIndex })
	}

	for i := range out {
		idx := i
		out[i].OrderIndex = &idx
	}
	return out
}

func (g *ContentGenerator) GenerateChapterContent(ctx context.Context, chapterTitle, courseTitle, chapterDescription string) (string, error) {
	completion, err := g.AI.Complete(ctx, CompletionRequest{
		Purpose:     "chapter_content",
		System:      contentSystemPrompt,
		Prompt:      chapterContentPrompt(chapterTitle, courseTitle, chapterDescription),
		Temperature: contentTemperature,
	})
	if err != nil {
		return "", util.WithDetails(util.ErrGenerationFailure, "chapter completion failed", err)
	}

	content := strings.TrimSpace(completion)
	if content == "" {
		return "", util.WithDetails(util.ErrGenerationFailure, "chapter content is empty", nil)
	}
	return content, nil
}
