package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	reserrors "parkline/internal/reservations/errors"
	"parkline/pkg/clock"
	"parkline/pkg/logger"
	"parkline/pkg/model"

	"github.com/go-playground/validator/v10"
)

// PastTolerance absorbs clock skew for requests that start "now".
const PastTolerance = time.Minute

var featureRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,31}$`)

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

// Is lets callers classify any validation failure with reserrors.ErrInvalidRequest.
func (v ValidationErrors) Is(target error) bool {
	return target == reserrors.ErrInvalidRequest
}

type ReservationValidator struct {
	validate           *validator.Validate
	logger             *logger.Logger
	clock              clock.Clock
	maxBookingDuration time.Duration
}

func NewReservationValidator(log *logger.Logger, clk clock.Clock, maxBookingDuration time.Duration) *ReservationValidator {
	v := validator.New()

	if err := v.RegisterValidation("priority", validatePriority); err != nil {
		log.Fatal("Failed to register 'priority' validator", "error", err)
	}
	if err := v.RegisterValidation("feature", validateFeature); err != nil {
		log.Fatal("Failed to register 'feature' validator", "error", err)
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &ReservationValidator{
		validate:           v,
		logger:             log,
		clock:              clk,
		maxBookingDuration: maxBookingDuration,
	}
}

func validatePriority(fl validator.FieldLevel) bool {
	p, ok := fl.Field().Interface().(model.Priority)
	return ok && p.Valid()
}

func validateFeature(fl validator.FieldLevel) bool {
	return featureRegex.MatchString(fl.Field().String())
}

// Validate rejects malformed windows, windows in the past and windows longer than policy allows.
func (v *ReservationValidator) Validate(req *model.ReservationRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	if !req.EndTime.After(req.StartTime) {
		return ValidationErrors{{
			Field:   "EndTime",
			Message: "end_time must be after start_time",
		}}
	}

	if req.StartTime.Before(v.clock.Now().Add(-PastTolerance)) {
		return ValidationErrors{{
			Field:   "StartTime",
			Message: "start_time cannot be in the past",
		}}
	}

	if v.maxBookingDuration > 0 && req.Window().Duration() > v.maxBookingDuration {
		return ValidationErrors{{
			Field:   "EndTime",
			Message: fmt.Sprintf("booking duration %s exceeds the maximum of %s", req.Window().Duration(), v.maxBookingDuration),
		}}
	}

	return nil
}

func (v *ReservationValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "gte":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "priority":
			message = fmt.Sprintf("%s must be one of: low normal high vip emergency", err.Field())
		case "feature":
			message = fmt.Sprintf("%s must be a lowercase feature flag (e.g. charging)", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
