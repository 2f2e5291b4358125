package validate

import (
	"errors"
	"regexp"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/google/uuid"
)

var (
	skuRE       = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)
	paymentIDRE = regexp.MustCompile(`^[a-zA-Z0-9-]{20,50}$`)
)

var validate *validator.Validate

var translator ut.Translator

func init() {

	validate = validator.New()

	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterValidation("sku", func(fl validator.FieldLevel) bool {
		return skuRE.MatchString(fl.Field().String())
	})
	validate.RegisterTranslation("sku", translator,
		func(ut ut.Translator) error {
			return ut.Add("sku", "{0} must contain only lowercase letters, digits and dashes", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T("sku", fe.Field())
			return t
		},
	)
}

func Check(val any) error {
	if err := validate.Struct(val); err != nil {

		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		if len(verrors) < 1 {
			return nil
		}

		return errors.New(verrors[0].Translate(translator))
	}

	return nil
}

func GenerateID() string {
	return uuid.NewString()
}

func CheckID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("ID is not in its proper form")
	}
	return nil
}

// PaymentID reports whether id has the gateway's payment id shape.
func PaymentID(id string) bool {
	return paymentIDRE.MatchString(id)
}
