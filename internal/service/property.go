package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"propscan-api/internal/cache"
	"propscan-api/internal/logger"
	"propscan-api/internal/model"
	"propscan-api/internal/repository"
	"propscan-api/pkg/apierror"
	"propscan-api/pkg/serial"
	"propscan-api/pkg/uid"
)

// Risk levels accepted by the property form.
var riskLevels = map[string]bool{"low": true, "medium": true, "high": true}

var propertyStatuses = map[string]bool{
	model.PropertyActive:   true,
	model.PropertyInactive: true,
	model.PropertyArchived: true,
}

// PropertyService handles property business logic on top of the store.
type PropertyService struct {
	repo  repository.PropertyRepository
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// NewPropertyService creates a property service. c may be nil.
func NewPropertyService(repo repository.PropertyRepository, c cache.Cache, ttl time.Duration) *PropertyService {
	return &PropertyService{
		repo:  repo,
		cache: c,
		ttl:   ttl,
		now:   time.Now,
		log:   logger.WithComponent("PropertyService"),
	}
}

// GetBySerial looks a property up by serial number, reading through the cache.
func (s *PropertyService) GetBySerial(ctx context.Context, serialNumber string) (*model.Property, error) {
	sn, ok := serial.Normalize(serialNumber)
	if !ok {
		return nil, apierror.ValidationError("Invalid serial number",
			apierror.FieldError{Field: "serialNumber", Message: "must match PROP-YYYY-NNNNNN"})
	}

	load := func() ([]byte, error) {
		p, err := s.repo.GetBySerial(ctx, sn)
		if err != nil {
			return nil, s.storeError("get property", err)
		}
		return json.Marshal(p)
	}

	if s.cache == nil {
		return s.decode(load())
	}

	data, err := s.cache.GetOrSet(ctx, cache.PropertyKey(sn), s.ttl, load)
	if err != nil {
		if _, isAPI := apierror.As(err); isAPI {
			return nil, err
		}
		s.log.Warn().Err(err).Str("serial", sn).Msg("Cache unavailable, reading store directly")
		return s.decode(load())
	}
	return s.decode(data, nil)
}

// GetByID looks a property up by id.
func (s *PropertyService) GetByID(ctx context.Context, id string) (*model.Property, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeError("get property", err)
	}
	return p, nil
}

// Create validates a form and stores the resulting property.
func (s *PropertyService) Create(ctx context.Context, form model.PropertyForm) (*model.Property, error) {
	form = trimForm(form)
	if errs := ValidateForm(form); len(errs) > 0 {
		return nil, apierror.ValidationError("Invalid property form", errs...)
	}

	now := s.now().UTC()
	p := PropertyFromForm(form)
	p.ID = uid.New()
	p.Status = model.PropertyActive
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.repo.Create(ctx, &p); err != nil {
		return nil, s.storeError("create property", err)
	}

	s.log.Info().Str("id", p.ID).Str("serial", p.SerialNumber).Msg("Property created")
	return &p, nil
}

// Update applies a partial form to the property with the given id. The
// merged form is validated as a whole.
func (s *PropertyService) Update(ctx context.Context, id string, upd model.PropertyUpdate) (*model.Property, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeError("get property", err)
	}

	form := trimForm(applyUpdate(FormFromProperty(*current), upd))
	errs := ValidateForm(form)
	if upd.Status != nil && !propertyStatuses[*upd.Status] {
		errs = append(errs, apierror.FieldError{Field: "status", Message: "must be active, inactive or archived"})
	}
	if len(errs) > 0 {
		return nil, apierror.ValidationError("Invalid property form", errs...)
	}

	next := PropertyFromForm(form)
	next.ID = current.ID
	next.Status = current.Status
	if upd.Status != nil {
		next.Status = *upd.Status
	}
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, s.storeError("update property", err)
	}
	s.invalidate(ctx, current.SerialNumber, next.SerialNumber)

	return &next, nil
}

// Delete removes the property with the given id.
func (s *PropertyService) Delete(ctx context.Context, id string) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return s.storeError("get property", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.storeError("delete property", err)
	}
	s.invalidate(ctx, current.SerialNumber)

	s.log.Info().Str("id", id).Str("serial", current.SerialNumber).Msg("Property deleted")
	return nil
}

// List returns a page of properties. page is 1-based.
func (s *PropertyService) List(ctx context.Context, page, limit int) ([]model.Property, int64, error) {
	page, limit = clampPage(page, limit)
	items, total, err := s.repo.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, s.storeError("list properties", err)
	}
	return items, total, nil
}

// NextSerial proposes the next free serial number of the current year.
func (s *PropertyService) NextSerial(ctx context.Context) (string, error) {
	now := s.now()
	top, err := s.repo.MaxSequence(ctx, now.Year())
	if err != nil {
		return "", s.storeError("max sequence", err)
	}

	sn, err := serial.GenerateAt(now, top+1)
	if errors.Is(err, serial.ErrSequenceOutOfRange) {
		return "", apierror.Conflict(fmt.Sprintf("Serial numbers for %d are exhausted", now.Year()))
	}
	return sn, err
}

// Stats returns store statistics.
func (s *PropertyService) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, s.storeError("get stats", err)
	}
	return stats, nil
}

func (s *PropertyService) decode(data []byte, err error) (*model.Property, error) {
	if err != nil {
		return nil, err
	}
	var p model.Property
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, apierror.Unknown("")
	}
	return &p, nil
}

func (s *PropertyService) invalidate(ctx context.Context, serialNumbers ...string) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(serialNumbers))
	for _, sn := range serialNumbers {
		keys = append(keys, cache.PropertyKey(sn))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn().Err(err).Strs("keys", keys).Msg("Failed to invalidate property cache")
	}
}

// storeError maps repository failures onto API errors.
func (s *PropertyService) storeError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apierror.NotFound("Property not found")
	case errors.Is(err, repository.ErrDuplicate):
		return apierror.Duplicate("Serial number is already registered").
			WithSuggestion("Generate a new serial number")
	}
	if _, ok := apierror.As(err); ok {
		return err
	}
	s.log.Error().Err(err).Str("op", op).Msg("Property store failure")
	return apierror.Database("")
}

// ValidateForm checks a property form and returns one error per bad field.
func ValidateForm(f model.PropertyForm) []apierror.FieldError {
	var errs []apierror.FieldError
	check := func(field, value string, min, max int) {
		n := utf8.RuneCountInString(value)
		switch {
		case n < min && min == 1:
			errs = append(errs, apierror.FieldError{Field: field, Message: "is required"})
		case n < min:
			errs = append(errs, apierror.FieldError{Field: field, Message: fmt.Sprintf("must be at least %d characters", min)})
		case n > max:
			errs = append(errs, apierror.FieldError{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)})
		}
	}

	check("name", f.Name, 2, 100)
	check("company", f.Company, 2, 100)
	check("businessType", f.BusinessType, 1, 50)
	check("stationType", f.StationType, 1, 50)
	if !riskLevels[f.RiskLevel] {
		errs = append(errs, apierror.FieldError{Field: "riskLevel", Message: "must be low, medium or high"})
	}
	check("businessNature", f.BusinessNature, 1, 50)
	switch {
	case f.SerialCode == "":
		errs = append(errs, apierror.FieldError{Field: "serialCode", Message: "is required"})
	case !serial.Validate(f.SerialCode):
		errs = append(errs, apierror.FieldError{Field: "serialCode", Message: "must match PROP-YYYY-NNNNNN"})
	}
	check("province", f.Province, 2, 20)
	check("city", f.City, 2, 20)
	check("district", f.District, 2, 20)
	check("address", f.Address, 5, 200)

	return errs
}

// PropertyFromForm maps a validated form onto a property without identity
// or timestamps.
func PropertyFromForm(f model.PropertyForm) model.Property {
	return model.Property{
		SerialNumber: f.SerialCode,
		Name:         f.Name,
		Description:  f.BusinessType + " - " + f.StationType,
		Category:     f.BusinessNature,
		Location:     f.Province + f.City + f.District + f.Address,
		Metadata: model.PropertyMetadata{
			Company:        f.Company,
			BusinessType:   f.BusinessType,
			StationType:    f.StationType,
			RiskLevel:      f.RiskLevel,
			BusinessNature: f.BusinessNature,
			Address: model.Address{
				Province: f.Province,
				City:     f.City,
				District: f.District,
				Detail:   f.Address,
			},
		},
	}
}

// FormFromProperty is the inverse of PropertyFromForm, used to prefill edits.
func FormFromProperty(p model.Property) model.PropertyForm {
	md := p.Metadata
	return model.PropertyForm{
		Name:           p.Name,
		Company:        md.Company,
		BusinessType:   md.BusinessType,
		StationType:    md.StationType,
		RiskLevel:      md.RiskLevel,
		BusinessNature: p.Category,
		SerialCode:     p.SerialNumber,
		Province:       md.Address.Province,
		City:           md.Address.City,
		District:       md.Address.District,
		Address:        md.Address.Detail,
	}
}

func applyUpdate(f model.PropertyForm, u model.PropertyUpdate) model.PropertyForm {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&f.Name, u.Name)
	set(&f.Company, u.Company)
	set(&f.BusinessType, u.BusinessType)
	set(&f.StationType, u.StationType)
	set(&f.RiskLevel, u.RiskLevel)
	set(&f.BusinessNature, u.BusinessNature)
	set(&f.SerialCode, u.SerialCode)
	set(&f.Province, u.Province)
	set(&f.City, u.City)
	set(&f.District, u.District)
	set(&f.Address, u.Address)
	return f
}

func trimForm(f model.PropertyForm) model.PropertyForm {
	for _, field := range []*string{
		&f.Name, &f.Company, &f.BusinessType, &f.StationType, &f.RiskLevel,
		&f.BusinessNature, &f.Province, &f.City, &f.District, &f.Address,
	} {
		*field = strings.TrimSpace(*field)
	}
	f.SerialCode = serial.Format(f.SerialCode)
	return f
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
