package handlers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/dispatch"
	"github.com/example/marketplace/internal/middleware"
)

// Adapt serves a dispatch endpoint over fiber.
func Adapt(ep dispatch.Endpoint) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := dispatch.Request{
			Params: c.AllParams(),
			Query:  c.Queries(),
			Body:   append([]byte(nil), c.Body()...),
		}
		if identity, ok := middleware.CurrentIdentity(c); ok {
			req.Identity = &identity
		}

		res, err := ep(c.UserContext(), req)
		if err != nil {
			return err
		}
		return Render(c, res)
	}
}

// Render writes an endpoint response.
func Render(c *fiber.Ctx, res dispatch.Response) error {
	if res.Status == 0 {
		res.Status = fiber.StatusOK
	}
	if res.Body == nil {
		return c.SendStatus(res.Status)
	}
	return c.Status(res.Status).JSON(res.Body)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check validates the struct tags of v.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.ErrValidation, err, "invalid request")
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		fields = append(fields, ns+" ("+fe.Tag()+")")
	}
	return apperr.New(apperr.ErrValidation, "invalid fields: "+strings.Join(fields, ", "))
}

// decode unmarshals and validates the request body.
func decode(req dispatch.Request, dst any) error {
	if err := req.Decode(dst); err != nil {
		return err
	}
	return check(dst)
}

// bodyOf parses and validates a fiber request body.
func bodyOf(c *fiber.Ctx, dst any) error {
	return decode(dispatch.Request{Body: c.Body()}, dst)
}
