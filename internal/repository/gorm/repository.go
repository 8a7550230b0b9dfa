package gormrepository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"syncpanel/internal/models"
	"syncpanel/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- sync job journal ------------------------------------------------------

// UpsertSyncJobRecord inserts the record or refreshes its mutable columns.
// Trigger, panel and start time are kept from the first insert.
func (s *Store) UpsertSyncJobRecord(ctx context.Context, item *models.SyncJobRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.JobID = strings.TrimSpace(item.JobID)
	if item.JobID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"progress",
			"current_step",
			"result",
			"error_message",
			"message",
			"finished_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSyncJobRecord(ctx context.Context, jobID string) (*models.SyncJobRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, nil
	}
	var item models.SyncJobRecord
	err := s.db.WithContext(ctx).First(&item, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSyncJobRecords(ctx context.Context, params repository.ListSyncJobRecordsParams) ([]models.SyncJobRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := filterSyncJobRecords(s.db.WithContext(ctx).Model(&models.SyncJobRecord{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "started_at")
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.SyncJobRecord
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSyncJobRecords(ctx context.Context, params repository.ListSyncJobRecordsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := filterSyncJobRecords(s.db.WithContext(ctx).Model(&models.SyncJobRecord{}), params)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func filterSyncJobRecords(query *gorm.DB, params repository.ListSyncJobRecordsParams) *gorm.DB {
	if params.SyncType != nil && strings.TrimSpace(*params.SyncType) != "" {
		query = query.Where("sync_type = ?", strings.TrimSpace(*params.SyncType))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Trigger != nil && strings.TrimSpace(*params.Trigger) != "" {
		query = query.Where("trigger = ?", strings.TrimSpace(*params.Trigger))
	}
	if params.PanelID != nil && strings.TrimSpace(*params.PanelID) != "" {
		query = query.Where("panel_id = ?", strings.TrimSpace(*params.PanelID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("started_at >= ?", *params.Since)
	}
	return query
}

// --- system settings -------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_by",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := filterSettingsPrefix(s.db.WithContext(ctx).Model(&models.SystemSetting{}), params.Prefix)
	query = applyOrder(query, params.OrderBy, params.Asc, "key")
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.SystemSetting
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := filterSettingsPrefix(s.db.WithContext(ctx).Model(&models.SystemSetting{}), params.Prefix)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func filterSettingsPrefix(query *gorm.DB, prefix *string) *gorm.DB {
	if prefix != nil && strings.TrimSpace(*prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*prefix)+"%")
	}
	return query
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

var _ repository.Repository = (*Store)(nil)
