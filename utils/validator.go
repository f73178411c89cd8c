package utils

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

type ValidationService struct {
	validator *validator.Validate
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func NewValidationService() *ValidationService {
	v := validator.New()

	// Register custom validators
	v.RegisterValidation("notification_type", validateNotificationType)
	v.RegisterValidation("notification_priority", validateNotificationPriority)
	v.RegisterValidation("reschedule_reason", validateRescheduleReason)
	v.RegisterValidation("wall_clock", validateWallClock)
	v.RegisterValidation("summary_frequency", validateSummaryFrequency)

	return &ValidationService{
		validator: v,
	}
}

func (vs *ValidationService) ValidateStruct(s interface{}) []ValidationError {
	var validationErrors []ValidationError

	err := vs.validator.Struct(s)
	if err != nil {
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, ValidationError{
				Field:   err.Field(),
				Tag:     err.Tag(),
				Value:   fmt.Sprintf("%v", err.Value()),
				Message: vs.getErrorMessage(err),
			})
		}
	}

	return validationErrors
}

func (vs *ValidationService) getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must have at least %s items or characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must have at most %s items or characters", fe.Field(), fe.Param())
	case "notification_type":
		return "Invalid notification type"
	case "notification_priority":
		return "Invalid notification priority"
	case "reschedule_reason":
		return "Invalid reschedule reason"
	case "wall_clock":
		return "Time must be in HH:MM format"
	case "summary_frequency":
		return "Invalid summary frequency"
	case "uuid4":
		return fmt.Sprintf("%s must be a valid UUID", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// Custom validation functions

func validateNotificationType(fl validator.FieldLevel) bool {
	t := fl.Field().String()
	validTypes := []string{"reminder", "assignment", "lecture", "srs", "achievement", "update", "marketing"}

	for _, validType := range validTypes {
		if t == validType {
			return true
		}
	}
	return false
}

func validateNotificationPriority(fl validator.FieldLevel) bool {
	priority := fl.Field().String()
	validPriorities := []string{"low", "normal", "high", "urgent"}

	for _, validPriority := range validPriorities {
		if priority == validPriority {
			return true
		}
	}
	return false
}

func validateRescheduleReason(fl validator.FieldLevel) bool {
	reason := fl.Field().String()
	validReasons := []string{"user_busy", "quiet_hours", "frequency_limit", "other"}

	for _, validReason := range validReasons {
		if reason == validReason {
			return true
		}
	}
	return false
}

var wallClockRegex = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

func validateWallClock(fl validator.FieldLevel) bool {
	return wallClockRegex.MatchString(fl.Field().String())
}

func validateSummaryFrequency(fl validator.FieldLevel) bool {
	freq := fl.Field().String()
	validFrequencies := []string{"immediate", "daily", "weekly"}

	for _, valid := range validFrequencies {
		if freq == valid {
			return true
		}
	}
	return false
}

// ValidateTimeFormat validates time format (HH:MM)
func ValidateTimeFormat(timeStr string) bool {
	return wallClockRegex.MatchString(timeStr)
}
