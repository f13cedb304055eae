package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator validates request payloads via struct tags.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	return &Validator{v: validator.New()}
}

func (v *Validator) Validate(obj interface{}) error {
	if err := v.v.Struct(obj); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			first := errs[0]
			return fmt.Errorf("field %s failed validation on %q", first.Field(), first.Tag())
		}
		return err
	}
	return nil
}
