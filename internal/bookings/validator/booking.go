package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"parkline/pkg/logger"
	"parkline/pkg/model"

	"github.com/go-playground/validator/v10"
)

var idRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// MaxListWindow bounds the range a booking listing may cover.
const MaxListWindow = 31 * 24 * time.Hour

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type listQuery struct {
	UnitID string    `validate:"required,entity_id"`
	Start  time.Time `validate:"required"`
	End    time.Time `validate:"required,gtfield=Start"`
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("entity_id", validateEntityID); err != nil {
		log.Fatal("Failed to register 'entity_id' validator", "error", err)
	}

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func validateEntityID(fl validator.FieldLevel) bool {
	return idRegex.MatchString(fl.Field().String())
}

func (v *BookingValidator) ValidateID(field, id string) error {
	if err := v.validate.Var(id, "required,entity_id"); err != nil {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("%s must be a non-empty identifier of at most 128 characters", field)}}
	}
	return nil
}

// ValidateListQuery checks the unit id and, when present, the listing window.
func (v *BookingValidator) ValidateListQuery(unitID string, window *model.TimeWindow) error {
	if window == nil {
		return v.ValidateID("UnitID", unitID)
	}

	q := listQuery{UnitID: unitID, Start: window.Start, End: window.End}
	if err := v.validate.Struct(q); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}
	if window.Duration() > MaxListWindow {
		return ValidationErrors{{
			Field:   "End",
			Message: fmt.Sprintf("listing window cannot exceed %s", MaxListWindow),
		}}
	}
	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var out ValidationErrors
	for _, err := range errs {
		message := err.Error()
		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", err.Field(), err.Param())
		case "entity_id":
			message = fmt.Sprintf("%s must be a non-empty identifier of at most 128 characters", err.Field())
		}
		out = append(out, ValidationError{Field: err.Field(), Message: message})
	}
	return out
}
