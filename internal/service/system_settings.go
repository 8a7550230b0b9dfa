package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"syncpanel/internal/models"
	"syncpanel/internal/repository"
)

const switchPrefix = "feature."

const (
	FeatureScheduledSync = switchPrefix + "scheduled_sync"
	FeatureSyncHistory   = switchPrefix + "sync_history"
	FeaturePaaSNotify    = switchPrefix + "paas_notify"
)

var ErrUnknownSwitch = errors.New("unknown switch")

type switchDef struct {
	enabled     bool
	description string
}

var featureSwitches = map[string]switchDef{
	FeatureScheduledSync: {true, "run cron sync schedules"},
	FeatureSyncHistory:   {true, "journal launches and outcomes to sync_job_records"},
	FeaturePaaSNotify:    {true, "broadcast sync outcomes through the easyweb3 platform"},
}

func DefaultFeatureSwitches() map[string]bool {
	out := make(map[string]bool, len(featureSwitches))
	for k, d := range featureSwitches {
		out[k] = d.enabled
	}
	return out
}

// FeatureSwitch is the effective state of one switch. Stored is false when
// the value comes from the built-in default.
type FeatureSwitch struct {
	Name        string     `json:"name"`
	Key         string     `json:"key"`
	Enabled     bool       `json:"enabled"`
	Default     bool       `json:"default"`
	Stored      bool       `json:"stored"`
	Description string     `json:"description"`
	UpdatedBy   string     `json:"updated_by,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// SwitchKey maps a switch name ("scheduled_sync") or key to its key.
func SwitchKey(name string) (string, bool) {
	name = strings.TrimSpace(name)
	key := name
	if !strings.HasPrefix(key, switchPrefix) {
		key = switchPrefix + name
	}
	_, ok := featureSwitches[key]
	return key, ok
}

type SystemSettingsService struct {
	Repo repository.SystemSettingRepository
}

func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, def := range featureSwitches {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			// Operators own existing switches; only missing ones are seeded.
			continue
		}
		item := switchSetting(key, def.enabled)
		item.CreatedAt = now
		item.UpdatedAt = now
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil {
		return fallback
	}
	enabled, ok := switchValue(item)
	if !ok {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	return s.setEnabled(ctx, key, enabled, "")
}

func (s *SystemSettingsService) setEnabled(ctx context.Context, key string, enabled bool, actor string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	item := switchSetting(key, enabled)
	item.UpdatedBy = strings.TrimSpace(actor)
	item.UpdatedAt = time.Now().UTC()
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// Switch reads one known switch by name or key.
func (s *SystemSettingsService) Switch(ctx context.Context, name string) (FeatureSwitch, error) {
	key, ok := SwitchKey(name)
	if !ok {
		return FeatureSwitch{}, ErrUnknownSwitch
	}
	var item *models.SystemSetting
	if s != nil && s.Repo != nil {
		var err error
		if item, err = s.Repo.GetSystemSettingByKey(ctx, key); err != nil {
			return FeatureSwitch{}, err
		}
	}
	return describeSwitch(key, item), nil
}

// Switches lists every known switch, stored or not, ordered by key.
func (s *SystemSettingsService) Switches(ctx context.Context) ([]FeatureSwitch, error) {
	keys := make([]string, 0, len(featureSwitches))
	for k := range featureSwitches {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]FeatureSwitch, 0, len(keys))
	for _, k := range keys {
		sw, err := s.Switch(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, sw)
	}
	return out, nil
}

// SetSwitch stores a known switch on behalf of actor and returns its new state.
func (s *SystemSettingsService) SetSwitch(ctx context.Context, name string, enabled bool, actor string) (FeatureSwitch, error) {
	key, ok := SwitchKey(name)
	if !ok {
		return FeatureSwitch{}, ErrUnknownSwitch
	}
	if err := s.setEnabled(ctx, key, enabled, actor); err != nil {
		return FeatureSwitch{}, err
	}
	return s.Switch(ctx, key)
}

func switchSetting(key string, enabled bool) *models.SystemSetting {
	raw, _ := json.Marshal(enabled)
	desc := "feature switch"
	if def, ok := featureSwitches[key]; ok {
		desc = def.description
	}
	return &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: desc,
	}
}

func switchValue(item *models.SystemSetting) (bool, bool) {
	if item == nil || len(item.Value) == 0 {
		return false, false
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return false, false
	}
	return enabled, true
}

func describeSwitch(key string, item *models.SystemSetting) FeatureSwitch {
	def := featureSwitches[key]
	sw := FeatureSwitch{
		Name:        strings.TrimPrefix(key, switchPrefix),
		Key:         key,
		Enabled:     def.enabled,
		Default:     def.enabled,
		Description: def.description,
	}
	if enabled, ok := switchValue(item); ok {
		sw.Enabled = enabled
		sw.Stored = true
		sw.UpdatedBy = item.UpdatedBy
		updated := item.UpdatedAt
		sw.UpdatedAt = &updated
	}
	return sw
}
