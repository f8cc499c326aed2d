package database

import (
	"time"

	"gorm.io/gorm"
)

// Activity is one audit-ledger row: a single facade mutation or
// dispatch event. Component names one of "agentstore", "taskstore",
// "taskcron", "reconciler", "monitor", "providers"; AgentID/TaskID are
// set when the event concerns one.
type Activity struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Component string         `gorm:"size:40;index" json:"component"`
	Action    string         `gorm:"size:60;index" json:"action"`
	AgentID   string         `gorm:"size:120;index" json:"agent_id,omitempty"`
	TaskID    string         `gorm:"size:120;index" json:"task_id,omitempty"`
	Summary   string         `gorm:"size:500" json:"summary"`
	Detail    string         `gorm:"type:text" json:"detail,omitempty"`
}

type ActivityRepo struct {
	db *gorm.DB
}

func NewActivityRepo() *ActivityRepo {
	return &ActivityRepo{db: DB}
}

// Log records one audit-ledger row, swallowing errors: the ledger is
// additive and must never block or fail the mutation it's recording.
// Safe to call on a nil *ActivityRepo.
func (r *ActivityRepo) Log(component, action, agentID, taskID, summary string) {
	if r == nil || r.db == nil {
		return
	}
	_ = r.Create(&Activity{
		Component: component,
		Action:    action,
		AgentID:   agentID,
		TaskID:    taskID,
		Summary:   summary,
	})
}

func (r *ActivityRepo) Create(activity *Activity) error {
	return r.db.Create(activity).Error
}

func (r *ActivityRepo) Count() (int64, error) {
	var count int64
	err := r.db.Model(&Activity{}).Count(&count).Error
	return count, err
}

func (r *ActivityRepo) CountSince(since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&Activity{}).Where("created_at >= ?", since).Count(&count).Error
	return count, err
}

func (r *ActivityRepo) CountByComponent(since time.Time) (map[string]int64, error) {
	type result struct {
		Component string
		Count     int64
	}
	var results []result
	err := r.db.Model(&Activity{}).
		Select("component, count(*) as count").
		Where("created_at >= ?", since).
		Group("component").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, r := range results {
		counts[r.Component] = r.Count
	}
	return counts, nil
}

func (r *ActivityRepo) CountByAction(since time.Time) (map[string]int64, error) {
	type result struct {
		Action string
		Count  int64
	}
	var results []result
	err := r.db.Model(&Activity{}).
		Select("action, count(*) as count").
		Where("created_at >= ?", since).
		Group("action").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, r := range results {
		counts[r.Action] = r.Count
	}
	return counts, nil
}

func (r *ActivityRepo) List(filter ActivityFilter) ([]Activity, int64, error) {
	var activities []Activity
	var total int64

	q := r.db.Model(&Activity{})
	if filter.Component != "" {
		q = q.Where("component = ?", filter.Component)
	}
	if filter.AgentID != "" {
		q = q.Where("agent_id = ?", filter.AgentID)
	}
	if filter.TaskID != "" {
		q = q.Where("task_id = ?", filter.TaskID)
	}
	if filter.Keyword != "" {
		q = q.Where("summary LIKE ?", "%"+filter.Keyword+"%")
	}
	if filter.StartTime != "" {
		q = q.Where("created_at >= ?", filter.StartTime)
	}
	if filter.EndTime != "" {
		q = q.Where("created_at <= ?", filter.EndTime)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	sortOrder := filter.SortOrder
	if sortOrder == "" {
		sortOrder = "desc"
	}

	err := q.Order(sortBy + " " + sortOrder).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&activities).Error
	return activities, total, err
}

func (r *ActivityRepo) GetByID(id uint) (*Activity, error) {
	var activity Activity
	err := r.db.First(&activity, id).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

type ActivityFilter struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
	Component string
	AgentID   string
	TaskID    string
	Keyword   string
	StartTime string
	EndTime   string
}

func (f *ActivityFilter) Offset() int {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	return (f.Page - 1) * f.PageSize
}
