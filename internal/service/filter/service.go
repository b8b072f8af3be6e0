package filter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/availability-api/internal/config"
	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/pkg/logger"
)

// Values used when neither an override, the configuration nor the stored
// calendars yield a value for a field.
const (
	FallbackDoctorID      = "1"
	FallbackClinicID      = "1"
	FallbackTreatmentType = "general"
)

const keysCacheKey = "calendar_keys"

// KeySource lists the (doctor, clinic, treatment) relation.
type KeySource interface {
	ListCalendarKeys(ctx context.Context) ([]model.CalendarKey, error)
}

// Labels maps raw ids to display labels per field.
type Labels struct {
	Doctors    map[string]string
	Clinics    map[string]string
	Treatments map[string]string
}

func LabelsFrom(cfg config.FilterConfig) Labels {
	toMap := func(labels []config.Label) map[string]string {
		m := make(map[string]string, len(labels))
		for _, l := range labels {
			m[l.ID] = l.Label
		}
		return m
	}
	return Labels{
		Doctors:    toMap(cfg.Doctors),
		Clinics:    toMap(cfg.Clinics),
		Treatments: toMap(cfg.Treatments),
	}
}

func (l Labels) label(field model.FilterField, id string) string {
	var m map[string]string
	switch field {
	case model.FieldDoctor:
		m = l.Doctors
	case model.FieldClinic:
		m = l.Clinics
	case model.FieldTreatment:
		m = l.Treatments
	}
	if label, ok := m[id]; ok && label != "" {
		return label
	}
	return id
}

// Service resolves the cascading doctor/clinic/treatment choices of a
// selection form from the stored calendars.
type Service struct {
	source KeySource
	labels Labels
	cache  *cache.Cache
	logger *logger.Logger
}

// NewService creates the filter engine. A zero cacheTTL disables caching of
// the calendar relation.
func NewService(source KeySource, labels Labels, cacheTTL time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{source: source, labels: labels, logger: log}
	if cacheTTL > 0 {
		s.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return s
}

// Invalidate drops the cached relation after calendars were added or removed.
func (s *Service) Invalidate() {
	if s.cache != nil {
		s.cache.Delete(keysCacheKey)
	}
}

func (s *Service) keys(ctx context.Context) ([]model.CalendarKey, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(keysCacheKey); ok {
			return cached.([]model.CalendarKey), nil
		}
	}

	keys, err := s.source.ListCalendarKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load calendar keys: %w", err)
	}
	if s.cache != nil {
		s.cache.SetDefault(keysCacheKey, keys)
	}
	return keys, nil
}

func keyValue(k model.CalendarKey, f model.FilterField) string {
	switch f {
	case model.FieldDoctor:
		return k.DoctorID
	case model.FieldClinic:
		return k.ClinicID
	case model.FieldTreatment:
		return k.TreatmentType
	}
	return ""
}

var fields = []model.FilterField{model.FieldDoctor, model.FieldClinic, model.FieldTreatment}

// ResolveOptions projects the calendars matching every non-empty field of
// known (other than field itself) onto field. The result is deduplicated,
// sorted by label and never nil.
func (s *Service) ResolveOptions(ctx context.Context, field model.FilterField, known model.Selection) ([]model.Option, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	options := []model.Option{}
	for _, k := range keys {
		if !matches(k, field, known) {
			continue
		}
		v := keyValue(k, field)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		options = append(options, model.Option{Value: v, Label: s.labels.label(field, v)})
	}

	sort.Slice(options, func(i, j int) bool {
		if options[i].Label != options[j].Label {
			return options[i].Label < options[j].Label
		}
		return options[i].Value < options[j].Value
	})
	return options, nil
}

func matches(k model.CalendarKey, field model.FilterField, known model.Selection) bool {
	for _, f := range fields {
		if f == field {
			continue
		}
		if want := known.Get(f); want != "" && keyValue(k, f) != want {
			return false
		}
	}
	return true
}

// order returns the fields of a mode with the fixed one first.
func order(mode model.FilterMode) []model.FilterField {
	if mode == model.FilterModeClinic {
		return []model.FilterField{model.FieldDoctor, model.FieldClinic, model.FieldTreatment}
	}
	return []model.FilterField{model.FieldClinic, model.FieldDoctor, model.FieldTreatment}
}

func configured(settings model.FilterSettings, f model.FilterField) string {
	switch f {
	case model.FieldDoctor:
		return settings.DoctorID
	case model.FieldClinic:
		return settings.ClinicID
	case model.FieldTreatment:
		return settings.TreatmentType
	}
	return ""
}

func fallback(f model.FilterField) string {
	switch f {
	case model.FieldDoctor:
		return FallbackDoctorID
	case model.FieldClinic:
		return FallbackClinicID
	default:
		return FallbackTreatmentType
	}
}

// ResolveEffectiveSelection picks a value for every field: an override wins
// over the configured value, which wins over the first option still valid
// for the fields resolved so far, which wins over the fallback constant.
// The result never has an empty field.
func (s *Service) ResolveEffectiveSelection(ctx context.Context, settings model.FilterSettings, overrides model.Selection) model.Selection {
	var sel model.Selection
	for _, f := range order(settings.Mode) {
		if v := overrides.Get(f); v != "" {
			sel.Set(f, v)
			continue
		}
		if v := configured(settings, f); v != "" {
			sel.Set(f, v)
			continue
		}

		options, err := s.ResolveOptions(ctx, f, sel)
		if err != nil {
			s.logger.Warn("falling back to default selection", "field", string(f), "error", err.Error())
		}
		if len(options) > 0 {
			sel.Set(f, options[0].Value)
			continue
		}
		sel.Set(f, fallback(f))
	}
	return sel
}

// Options returns the valid choices for every user-selectable field of the
// mode given the current selection. Fixed fields have nil options.
func (s *Service) Options(ctx context.Context, settings model.FilterSettings, selection model.Selection) (*model.FilterOptions, error) {
	effective := s.ResolveEffectiveSelection(ctx, settings, selection)
	result := &model.FilterOptions{Mode: settings.Mode, Selection: effective}
	if result.Mode == "" {
		result.Mode = model.FilterModeDoctor
	}

	selectable := model.FieldDoctor
	fixed := model.FieldClinic
	if result.Mode == model.FilterModeClinic {
		selectable, fixed = model.FieldClinic, model.FieldDoctor
	}

	// The selectable field is narrowed by the fixed field, and by the
	// treatment only when the treatment is fixed too.
	known := model.Selection{}
	known.Set(fixed, effective.Get(fixed))
	if !settings.TreatmentSelectable {
		known.TreatmentType = effective.TreatmentType
	}
	primary, err := s.ResolveOptions(ctx, selectable, known)
	if err != nil {
		return nil, err
	}

	var treatments []model.Option
	if settings.TreatmentSelectable {
		known := model.Selection{}
		known.Set(fixed, effective.Get(fixed))
		known.Set(selectable, effective.Get(selectable))
		treatments, err = s.ResolveOptions(ctx, model.FieldTreatment, known)
		if err != nil {
			return nil, err
		}
	}

	if selectable == model.FieldDoctor {
		result.Doctors = primary
	} else {
		result.Clinics = primary
	}
	result.Treatments = treatments
	return result, nil
}
