package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"cardoctor/pkg/logger"
	"cardoctor/pkg/model"
)

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

// predecessors lists, per target status, the statuses a booking may move
// from. A missing status counts as pending. Cancelling is allowed from
// anywhere, so it has no entry.
var predecessors = map[model.BookingStatus][]any{
	model.BookingPending:   {string(model.BookingPending), nil},
	model.BookingConfirmed: {string(model.BookingPending), string(model.BookingConfirmed), nil},
	model.BookingCompleted: {string(model.BookingConfirmed), string(model.BookingCompleted)},
}

type strictStatusUpdate struct {
	Status *string `validate:"required,booking_status"`
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("booking_status", validateBookingStatus); err != nil {
		log.Fatal("Failed to register 'booking_status' validator",
			"error", err,
		)
	}

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func validateBookingStatus(fl validator.FieldLevel) bool {
	switch model.BookingStatus(fl.Field().String()) {
	case model.BookingPending, model.BookingConfirmed, model.BookingCompleted, model.BookingCancelled:
		return true
	default:
		return false
	}
}

// ValidateStatusUpdate checks the body of a status change in strict mode: the
// status must be a string holding one of the known values.
func (v *BookingValidator) ValidateStatusUpdate(update model.StatusUpdate) error {
	var status *string
	if s, ok := update.StatusString(); ok {
		status = &s
	} else if update.Status != nil {
		return ValidationErrors{{Field: "status", Message: "status must be a string"}}
	}

	if err := v.validate.Struct(strictStatusUpdate{Status: status}); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

// AllowedPredecessors returns the statuses a booking must currently hold to
// move to target. nil means any.
func (v *BookingValidator) AllowedPredecessors(target model.BookingStatus) []any {
	return predecessors[target]
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		field := strings.ToLower(err.Field())
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "booking_status":
			message = fmt.Sprintf("%s must be one of: %s, %s, %s, %s", field,
				model.BookingPending, model.BookingConfirmed, model.BookingCompleted, model.BookingCancelled)
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   field,
			Message: message,
		})
	}

	return validationErrors
}
