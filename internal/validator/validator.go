package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
)

// Validator validates request structs and domain business rules.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// New creates a validator with the domain rules registered.
func New() *Validator {
	validate := validator.New()

	v := &Validator{validate: validate}
	v.registerBusinessRules()

	return v
}

// Validate validates a struct against its tags and registered rules.
// Returns nil when valid.
func (v *Validator) Validate(s interface{}) ValidationErrors {
	err := v.validate.Struct(s)
	if err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

func (v *Validator) registerBusinessRules() {
	// A page subtype must be one of the known question or structure
	// subtypes.
	_ = v.validate.RegisterValidation("page_subtype", func(fl validator.FieldLevel) bool {
		switch int(fl.Field().Int()) {
		case models.PageSubtypeShortAnswer, models.PageSubtypeTrueFalse,
			models.PageSubtypeMultichoice, models.PageSubtypeMatching,
			models.PageSubtypeNumerical, models.PageSubtypeEssay,
			models.PageSubtypeBranchTable, models.PageSubtypeEndOfBranch,
			models.PageSubtypeCluster, models.PageSubtypeEndOfCluster:
			return true
		}
		return false
	})

	// Jump values are either page ids (> 0) or one of the relative jump
	// constants.
	_ = v.validate.RegisterValidation("jump_value", func(fl validator.FieldLevel) bool {
		jump := fl.Field().Int()
		if jump > 0 {
			return true
		}
		switch jump {
		case models.JumpThisPage, models.JumpNextPage, models.JumpEOL,
			models.JumpUnseenBranch, models.JumpRandomPage,
			models.JumpRandomBranch, models.JumpClusterJump:
			return true
		}
		return false
	})
}

// ToValidationErrors converts go-playground validation output.
func ToValidationErrors(err error) ValidationErrors {
	if err == nil {
		return nil
	}

	var result ValidationErrors
	if fieldErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrors {
			result = append(result, ValidationError{
				Field:   fe.Field(),
				Message: messageForTag(fe),
				Value:   fe.Value(),
				Rule:    fe.Tag(),
			})
		}
		return result
	}

	return ValidationErrors{{Field: "", Message: err.Error()}}
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "page_subtype":
		return "is not a known page subtype"
	case "jump_value":
		return "is not a valid jump"
	default:
		return fmt.Sprintf("failed rule %q", fe.Tag())
	}
}
