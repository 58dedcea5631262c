package enrollment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"tsa/lib/apperrors"
	"tsa/lib/models"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// ValidationResult is the outcome of validating one step submission
type ValidationResult struct {
	Valid           bool
	Error           string
	Fields          []string
	CompletedFields []string
	Payload         models.StepPayload
	Data            map[string]interface{}
}

// StepValidator checks step payloads and request bodies. It has no side effects.
type StepValidator struct {
	validate *validator.Validate
}

// NewStepValidator registers json field naming, notblank and the grade_level
// and schedule_type rules
func NewStepValidator() *StepValidator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterValidation("grade_level", func(fl validator.FieldLevel) bool {
		return ValidGradeLevel(fl.Field().String())
	})
	validate.RegisterValidation("schedule_type", func(fl validator.FieldLevel) bool {
		return models.ValidScheduleType(fl.Field().String())
	})
	validate.RegisterValidation("notblank", validators.NotBlank)
	return &StepValidator{validate: validate}
}

// Validate decodes raw into the payload variant for stepNumber and checks its required fields
func (v *StepValidator) Validate(stepNumber int, raw json.RawMessage) ValidationResult {
	payload, err := models.NewStepPayload(stepNumber)
	if err != nil {
		return ValidationResult{Error: err.Error(), Fields: []string{"step_number"}}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ValidationResult{Error: "step_data is required", Fields: []string{"step_data"}}
	}

	var data map[string]interface{}
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return ValidationResult{Error: "step_data must be a JSON object", Fields: []string{"step_data"}}
	}
	if err := json.Unmarshal(trimmed, payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return ValidationResult{
				Error:  fmt.Sprintf("Invalid step %d data: %s has the wrong type", stepNumber, typeErr.Field),
				Fields: []string{typeErr.Field},
			}
		}
		return ValidationResult{Error: fmt.Sprintf("Invalid step %d data: %v", stepNumber, err), Fields: []string{"step_data"}}
	}

	if fields := v.invalidFields(payload); len(fields) > 0 {
		return ValidationResult{
			Error:  fmt.Sprintf("Step %d is missing or has invalid fields: %s", stepNumber, strings.Join(fields, ", ")),
			Fields: fields,
		}
	}

	return ValidationResult{
		Valid:           true,
		CompletedFields: completedFields(data),
		Payload:         payload,
		Data:            data,
	}
}

// ValidateRequest checks a tagged request body and returns an apperrors validation error
func (v *StepValidator) ValidateRequest(request interface{}) error {
	if fields := v.invalidFields(request); len(fields) > 0 {
		return apperrors.Validation("Invalid request: "+strings.Join(fields, ", "), fields...)
	}
	return nil
}

// invalidFields returns the sorted JSON paths that failed validation
func (v *StepValidator) invalidFields(target interface{}) []string {
	err := v.validate.Struct(target)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	fields := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields = append(fields, jsonPath(fieldErr.Namespace()))
	}
	sort.Strings(fields)
	return fields
}

// jsonPath drops the Go type name that prefixes validator namespaces
func jsonPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func completedFields(data map[string]interface{}) []string {
	fields := make([]string, 0, len(data))
	for key, value := range data {
		if !isEmptyValue(value) {
			fields = append(fields, key)
		}
	}
	sort.Strings(fields)
	return fields
}

func isEmptyValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	default:
		return false
	}
}

var gradeLevels = map[string]bool{
	"PK": true, "K": true,
	"1": true, "2": true, "3": true, "4": true, "5": true, "6": true,
	"7": true, "8": true, "9": true, "10": true, "11": true, "12": true,
}

// ValidGradeLevel accepts PK, K and 1 through 12
func ValidGradeLevel(grade string) bool {
	return gradeLevels[NormalizeGradeLevel(grade)]
}

// NormalizeGradeLevel upper-cases and strips leading zeros so "09" and "9" match
func NormalizeGradeLevel(grade string) string {
	grade = strings.ToUpper(strings.TrimSpace(grade))
	if trimmed := strings.TrimLeft(grade, "0"); trimmed != "" {
		return trimmed
	}
	return grade
}
