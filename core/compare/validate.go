package compare

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValueValidator checks a value against its descriptor's validate tag before it is
// written to a record.
type ValueValidator struct {
	validate *validator.Validate
}

// NewValueValidator wraps v; a nil v gets a fresh validator.
func NewValueValidator(v *validator.Validate) *ValueValidator {
	if v == nil {
		v = validator.New()
	}
	return &ValueValidator{validate: v}
}

// Check validates value against desc.Validate. Values that are not present only
// fail when the tag requires them.
func (vv *ValueValidator) Check(desc Descriptor, value Value) error {
	if desc.Validate == "" {
		return nil
	}
	if !value.IsPresent() {
		if requiresValue(desc.Validate) {
			return fmt.Errorf("field %q: value required", desc.Name)
		}
		return nil
	}

	var target any
	switch value.Type {
	case TypeNumeric:
		f, _ := value.Number.Float64()
		target = f
	case TypeYear:
		target = value.Years.From
		if err := vv.validate.Var(value.Years.To, desc.Validate); err != nil {
			return fmt.Errorf("field %q: %w", desc.Name, err)
		}
	default:
		target = value.Text
	}
	if err := vv.validate.Var(target, desc.Validate); err != nil {
		return fmt.Errorf("field %q: %w", desc.Name, err)
	}
	return nil
}

func requiresValue(tag string) bool {
	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == "required" {
			return true
		}
	}
	return false
}
