package model

import "time"

type Course struct {
	BaseModel
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Topic       string    `gorm:"size:255" json:"topic"`
	AuthorID    uint      `gorm:"index;not null" json:"authorId"`
	IsPublic    bool      `gorm:"default:false" json:"isPublic"`
	ViewCount   int64     `gorm:"default:0" json:"viewCount"`
	Chapters    []Chapter `gorm:"foreignKey:CourseID" json:"chapters,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}

// Chapter order_index is unique within a course and drives both display and prompt order.
type Chapter struct {
	BaseModel
	CourseID    uint    `gorm:"not null;uniqueIndex:idx_chapter_course_order" json:"courseId"`
	Title       string  `gorm:"size:255;not null" json:"title"`
	Description string  `gorm:"type:text" json:"description"`
	Content     *string `json:"content"`
	OrderIndex  int     `gorm:"not null;uniqueIndex:idx_chapter_course_order" json:"orderIndex"`
}

func (Chapter) TableName() string {
	return "chapters"
}

func (c *Chapter) HasContent() bool {
	return c.Content != nil && *c.Content != ""
}

type Enrollment struct {
	BaseModel
	CourseID    uint       `gorm:"not null;uniqueIndex:idx_enrollment_course_user" json:"courseId"`
	UserID      uint       `gorm:"not null;uniqueIndex:idx_enrollment_course_user" json:"userId"`
	Progress    int        `gorm:"default:0" json:"progress"`
	IsCompleted bool       `gorm:"default:false" json:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

type ChapterProgress struct {
	BaseModel
	ChapterID   uint       `gorm:"not null;uniqueIndex:idx_progress_chapter_user" json:"chapterId"`
	CourseID    uint       `gorm:"not null;index" json:"courseId"`
	UserID      uint       `gorm:"not null;uniqueIndex:idx_progress_chapter_user" json:"userId"`
	IsCompleted bool       `gorm:"default:false" json:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt"`
}

func (ChapterProgress) TableName() string {
	return "chapter_progress"
}

type Bookmark struct {
	BaseModel
	CourseID uint `gorm:"not null;uniqueIndex:idx_bookmark_course_user" json:"courseId"`
	UserID   uint `gorm:"not null;uniqueIndex:idx_bookmark_course_user" json:"userId"`
}

func (Bookmark) TableName() string {
	return "bookmarks"
}
