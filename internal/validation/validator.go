package validation

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// MsgMissingFields is reported when any required field is absent.
const MsgMissingFields = "Missing required fields"

// New returns a validator that reports fields by their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Fields flattens validator errors into namespace -> failed tag.
func Fields(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Namespace()] = fe.Tag()
		}
	} else if err != nil {
		out["error"] = err.Error()
	}
	return out
}

// Message summarises validation errors for the response body. Absent fields
// and empty item lists both read as missing.
func Message(err error) string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Invalid request"
	}
	for _, fe := range ve {
		if fe.Tag() == "required" || fe.Tag() == "min" {
			return MsgMissingFields
		}
	}
	fe := ve[0]
	return "Invalid " + fe.Field() + ": failed " + fe.Tag()
}

// BindJSON decodes the request body into out. A malformed body gets a 400
// response and an error so the handler can short-circuit.
func BindJSON(c *gin.Context, out interface{}) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request body",
		})
		return err
	}
	return nil
}
