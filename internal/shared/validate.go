package shared

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Decimals validate through their float value so tags like gt=0 apply.
		validate.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
	})
	return validate
}

// ValidateStruct checks validate tags on v and reports failures as ErrValidation.
func ValidateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Validation("%v", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Field()+" failed "+fe.Tag())
	}
	sort.Strings(msgs)
	return Validation("%s", strings.Join(msgs, ", "))
}

// MoneyScale is the number of fractional digits stored for amounts.
const MoneyScale = 2

// ValidateMoney rejects amounts that are not positive or that carry more
// fractional digits than the NUMERIC(20,2) columns keep.
func ValidateMoney(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return Validation("%s must be positive", field)
	}
	if !d.Equal(d.Round(MoneyScale)) {
		return Validation("%s %s has more than %d decimal places", field, d, MoneyScale)
	}
	return nil
}
