package models

import "time"

// DashboardStats aggregates the admin back-office overview.
type DashboardStats struct {
	TotalUsers            int              `json:"total_users"`
	UsersByRole           map[UserRole]int `json:"users_by_role"`
	ActiveTeachers        int              `json:"active_teachers"`
	PendingTeacherReviews int              `json:"pending_teacher_reviews"`
	MonthlyRevenueCents   int64            `json:"monthly_revenue_cents"`
	PreviousRevenueCents  int64            `json:"previous_revenue_cents"`
	RevenueChangePercent  float64          `json:"revenue_change_percent"`
	NewUsersThisMonth     int              `json:"new_users_this_month"`
	NewUsersPreviousMonth int              `json:"new_users_previous_month"`
	UserGrowthPercent     float64          `json:"user_growth_percent"`
	RequestsThisMonth     int              `json:"requests_this_month"`
	RequestsPreviousMonth int              `json:"requests_previous_month"`
	RequestGrowthPercent  float64          `json:"request_growth_percent"`
	TotalSessions         int              `json:"total_sessions"`
	AcceptedSessions      int              `json:"accepted_sessions"`
	AnsweredSessions      int              `json:"answered_sessions"`
	SuccessRate           float64          `json:"success_rate"`
	GeneratedAt           time.Time        `json:"generated_at"`
}

// DateWindow is a half open [From, To) time range.
type DateWindow struct {
	From time.Time
	To   time.Time
}

// ExportStatus tracks an asynchronous export.
type ExportStatus string

const (
	ExportQueued     ExportStatus = "queued"
	ExportProcessing ExportStatus = "processing"
	ExportFinished   ExportStatus = "finished"
	ExportFailed     ExportStatus = "failed"
)

// ExportJob describes a payment statement export requested by an admin.
type ExportJob struct {
	ID          string        `json:"id"`
	Format      string        `json:"format"`
	Status      ExportStatus  `json:"status"`
	RequestedBy string        `json:"requested_by"`
	Filter      PaymentFilter `json:"-"`
	StorageKey  string        `json:"-"`
	DownloadURL string        `json:"download_url,omitempty"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}
