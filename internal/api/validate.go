package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type sendMessageRequest struct {
	ConversationID string `json:"wa_id" validate:"required,max=64"`
	Body           string `json:"body" validate:"max=4096"`
	DisplayName    string `json:"profile_name" validate:"max=128"`
	Kind           string `json:"type" validate:"omitempty,oneof=text image document audio video"`
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=sent delivered read failed"`
}

type loadSampleRequest struct {
	Path string `json:"path" validate:"max=4096"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names instead of Go ones.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeBody unmarshals the request body into dst and validates it. An empty body is
// allowed when allowEmpty is set. Failures are 400 errors.
func decodeBody(c *fiber.Ctx, dst any, allowEmpty bool) error {
	body := c.Body()
	if len(body) == 0 && allowEmpty {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
	}
	if err := validate.Struct(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
