package attendance

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/fivesaside/touchline/core"
)

var (
	statusTag  = "attstatus"
	statusText = ErrInvalidStatus.Error()
)

// SetStatus is the payload of an attendance declaration.
type SetStatus struct {
	Status string `json:"status" validate:"required,attstatus"`
}

// InitValidators registers the attendance validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}

func statusValidation(fl validator.FieldLevel) bool {
	_, err := ParseStatus(fl.Field().String())
	return err == nil
}

func (ss *SetStatus) Validate(validate *validator.Validate) error {
	ss.Status = core.CleanString(ss.Status, true /* lower */)
	return validate.Struct(ss)
}
