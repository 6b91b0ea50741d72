// Package validate wraps go-playground/validator with a shared instance and
// readable error messages.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/go-playground/validator/v10"
)

// v is initialised once; validator caches struct metadata per type.
var v = validator.New(validator.WithRequiredStructEnabled())

// Struct validates s using its validate tags. Failures wrap
// common.ErrValidation and list every offending field.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", common.ErrValidation, strings.Join(msgs, "; "))
}
