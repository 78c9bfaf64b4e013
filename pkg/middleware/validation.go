package middleware

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/fileflow-platform/tracking-service/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// InitValidator initializes the validator with custom validators
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()

		// Register custom validators
		_ = validate.RegisterValidation("file_id", validateFileID)
		_ = validate.RegisterValidation("employee_code", validateEmployeeCode)
		_ = validate.RegisterValidation("stage", validateStage)
		_ = validate.RegisterValidation("safe_string", validateSafeString)

		// Use JSON tag names for error messages
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			return name
		})

		// Set as Gin's default validator
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("file_id", validateFileID)
			_ = v.RegisterValidation("employee_code", validateEmployeeCode)
			_ = v.RegisterValidation("stage", validateStage)
			_ = v.RegisterValidation("safe_string", validateSafeString)

			v.RegisterTagNameFunc(func(fld reflect.StructField) string {
				name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
				if name == "-" {
					return fld.Name
				}
				return name
			})
		}
	})

	return validate
}

// GetValidator returns the singleton validator instance
func GetValidator() *validator.Validate {
	if validate == nil {
		return InitValidator()
	}
	return validate
}

// Custom validators

var (
	fileIDRegex       = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)
	employeeCodeRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,31}$`)
	safeStringRegex   = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.,!?@#$%&*()+=:;'"<>\/\[\]{}|\\~\x60]+$`)
)

func validateFileID(fl validator.FieldLevel) bool {
	return fileIDRegex.MatchString(fl.Field().String())
}

func validateEmployeeCode(fl validator.FieldLevel) bool {
	return employeeCodeRegex.MatchString(fl.Field().String())
}

func validateStage(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	validStages := map[string]bool{
		"PRELIMS":    true,
		"PRODUCTION": true,
		"COMPLETED":  true,
		"QC":         true,
		"DELIVERED":  true,
	}
	return validStages[value]
}

func validateSafeString(fl validator.FieldLevel) bool {
	return safeStringRegex.MatchString(fl.Field().String())
}

// ValidationErrorFormatter formats validation errors into a map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			field := e.Field()
			fields[field] = formatValidationError(e)
		}
	}

	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "file_id":
		return "must be a valid file ID (alphanumeric with dashes, dots, underscores)"
	case "employee_code":
		return "must be a valid employee code"
	case "stage":
		return "must be one of: PRELIMS, PRODUCTION, COMPLETED, QC, DELIVERED"
	case "safe_string":
		return "contains invalid characters"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

// BindAndValidate binds request body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			fields := ValidationErrorFormatter(validationErrors)
			return errors.ErrValidationWithFields("validation failed", fields)
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}

// ValidateStruct validates a struct using the validator
func ValidateStruct(obj interface{}) *errors.AppError {
	v := GetValidator()
	if err := v.Struct(obj); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			fields := ValidationErrorFormatter(validationErrors)
			return errors.ErrValidationWithFields("validation failed", fields)
		}
		return errors.ErrBadRequest("validation failed: " + err.Error())
	}
	return nil
}

// SanitizeString removes potentially dangerous characters from a string
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Trim whitespace
	s = strings.TrimSpace(s)

	return s
}

// InputSanitizer middleware sanitizes string inputs
func InputSanitizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Sanitize query parameters
		query := c.Request.URL.Query()
		for key, values := range query {
			for i, v := range values {
				values[i] = SanitizeString(v)
			}
			query[key] = values
		}
		c.Request.URL.RawQuery = query.Encode()

		c.Next()
	}
}

// ContentType middleware ensures proper content type for POST/PUT/PATCH
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "POST" || c.Request.Method == "PUT" || c.Request.Method == "PATCH" {
			contentType := c.GetHeader("Content-Type")
			if contentType == "" || !strings.HasPrefix(contentType, "application/json") {
				// Allow empty body for some endpoints
				if c.Request.ContentLength > 0 {
					AbortWithAppError(c, &errors.AppError{
						Code:       "INVALID_CONTENT_TYPE",
						Message:    "Content-Type must be application/json",
						HTTPStatus: 415,
					})
					return
				}
			}
		}
		c.Next()
	}
}
