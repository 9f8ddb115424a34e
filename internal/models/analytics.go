package models

import "time"

// Mastery bucket boundaries. Lower edges are inclusive: 80 is Mastered,
// 79 is In-Progress, 59 is Struggling.
const (
	MasteryBucketMasteredMin   = 80.0
	MasteryBucketInProgressMin = 60.0
)

// ObjectiveSummary aggregates mastery records for one learning objective.
// Objectives with zero assessed students still appear with zero values.
type ObjectiveSummary struct {
	Objective        string  `json:"objective"`
	AverageMastery   float64 `json:"average_mastery"`
	AssessedStudents int     `json:"assessed_students"`
	Mastered         int     `json:"mastered"`
	InProgress       int     `json:"in_progress"`
	Struggling       int     `json:"struggling"`
}

// LessonMasterySummary averages objective mastery across one lesson.
type LessonMasterySummary struct {
	LessonID       string  `json:"lesson_id"`
	LessonTitle    string  `json:"lesson_title"`
	AverageMastery float64 `json:"average_mastery"`
	ActivityCount  int     `json:"activity_count"`
}

// StudentProgressSummary rolls up one student's standing in a course.
type StudentProgressSummary struct {
	StudentID           string  `json:"student_id"`
	StudentName         string  `json:"student_name,omitempty"`
	ProgressPercent     float64 `json:"progress_percent"`
	PointsEarned        int     `json:"points_earned"`
	CompletedActivities int     `json:"completed_activities"`
	TotalActivities     int     `json:"total_activities"`
}

// PointsFeedEntry is one item in the recent points-earned feed.
type PointsFeedEntry struct {
	StudentID  string    `json:"student_id"`
	ActivityID string    `json:"activity_id"`
	Points     int       `json:"points"`
	AwardedAt  time.Time `json:"awarded_at"`
}

// EngagementSummary carries engagement counters for dashboards.
type EngagementSummary struct {
	AISessionCount     int               `json:"ai_session_count"`
	TotalPointsAwarded int               `json:"total_points_awarded"`
	PointsFeed         []PointsFeedEntry `json:"points_feed"`
}

// SystemMetrics is a lightweight snapshot of runtime counters for the
// admin dashboard.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	CompletionsTotal         uint64    `json:"completions_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// CourseAnalytics is the aggregated read model for one course.
type CourseAnalytics struct {
	CourseID   string                   `json:"course_id"`
	Lessons    []LessonMasterySummary   `json:"lessons"`
	Objectives []ObjectiveSummary       `json:"objectives"`
	Students   []StudentProgressSummary `json:"students"`
	Engagement EngagementSummary        `json:"engagement"`
	ComputedAt time.Time                `json:"computed_at"`
}
