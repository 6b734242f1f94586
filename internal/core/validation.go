package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/subtracker/internal/models"
)

// validationMessages maps json field name and failed tag to the text shown to the user.
var validationMessages = map[string]map[string]string{
	"serviceName": {
		"required": "Service name is required.",
	},
	"category": {
		"required": "Category is required.",
		"category": "Category is not recognized.",
	},
	"price": {
		"gt": "Price must be greater than 0.",
	},
	"billingCycle": {
		"required":     "Billing cycle is required.",
		"billingcycle": "Billing cycle is not recognized.",
	},
	"paymentMethod": {
		"required":      "Payment method is required.",
		"paymentmethod": "Payment method is not recognized.",
	},
}

// InputValidator checks subscription input against its struct tags.
type InputValidator struct {
	validate *validator.Validate
}

func NewInputValidator() *InputValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	enums := map[string]func(string) bool{
		"category":      func(s string) bool { return models.Category(s).Valid() },
		"billingcycle":  func(s string) bool { return models.BillingCycle(s).Valid() },
		"paymentmethod": func(s string) bool { return models.PaymentMethod(s).Valid() },
	}
	for tag, valid := range enums {
		valid := valid
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return valid(fl.Field().String())
		}); err != nil {
			panic(fmt.Sprintf("failed to register %s validation: %v", tag, err))
		}
	}
	return &InputValidator{validate: v}
}

// ValidateSubscription returns a *ValidationError for the first failing field, in
// declaration order, or nil.
func (v *InputValidator) ValidateSubscription(in models.SubscriptionInput) error {
	err := v.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fe := fieldErrs[0]
	if msg, ok := validationMessages[fe.Field()][fe.Tag()]; ok {
		return newValidationError(fe.Field(), msg)
	}
	return newValidationError(fe.Field(), fmt.Sprintf("%s is invalid.", fe.Field()))
}
