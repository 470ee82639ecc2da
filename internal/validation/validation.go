// Пакет validation: локальная проверка форм консоли на go-playground/validator.
// Ошибка проверки возвращается как *apperr.ValidationError и никогда
// не сопровождается сетевым вызовом.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/portline/console/internal/domain/apperr"
)

// phonePattern: телефон из 7-15 цифр.
var phonePattern = regexp.MustCompile(`^\d{7,15}$`)

// personNamePattern: имя из букв и пробелов, не короче трёх символов.
var personNamePattern = regexp.MustCompile(`^[\p{L} ]{3,}$`)

// LoginForm: форма входа.
type LoginForm struct {
	LogonName string `json:"logon_name" validate:"required"`
	Password  string `json:"password" validate:"required"`
}

// RegisterForm: форма регистрации клиента.
type RegisterForm struct {
	LogonName       string `json:"logon_name" validate:"required"`
	Password        string `json:"password" validate:"required"`
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Address         string `json:"address" validate:"required"`
	TelephoneNumber string `json:"telephone_number" validate:"required,phone"`
}

// ProfileForm: изменение собственных данных пользователя.
// Пароль обязателен: бэкенд сохраняет его заново при каждом изменении.
type ProfileForm struct {
	LogonName       string `json:"logon_name" validate:"required,alphanum,min=4"`
	Password        string `json:"password" validate:"required,min=8"`
	Name            string `json:"name" validate:"required,personname"`
	Email           string `json:"email" validate:"required,email"`
	Address         string `json:"address" validate:"required,min=8,max=64"`
	TelephoneNumber string `json:"telephone_number" validate:"required,phone"`
}

// CheckoutForm: оформление заказа из корзины.
type CheckoutForm struct {
	IDPort   int64 `json:"id_port" validate:"required,gt=0"`
	IDClient int64 `json:"id_client" validate:"omitempty,gt=0"`
}

// MaxQuantity: наибольшее количество одного продукта в корзине.
const MaxQuantity = 100000

// CartItemForm: добавление товара в корзину или смена количества.
type CartItemForm struct {
	IDProduct int64 `json:"id_product" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"gte=1,lte=100000"`
}

// messages: текст нарушения по тегу правила.
var messages = map[string]string{
	"required":   "обязательное поле",
	"email":      "некорректный email",
	"phone":      "телефон должен содержать от 7 до 15 цифр",
	"gt":         "значение должно быть положительным",
	"gte":        "значение слишком мало",
	"lte":        "значение слишком велико",
	"alphanum":   "допустимы только латинские буквы и цифры",
	"min":        "значение слишком короткое",
	"max":        "значение слишком длинное",
	"personname": "имя из букв и пробелов, не короче 3 символов",
}

// Validator: обёртка над validator.Validate с именами полей из json-тегов.
type Validator struct {
	validate *validator.Validate
}

// New создаёт валидатор с правилами phone и personname.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	// Ошибка регистрации возможна только при пустом теге.
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNamePattern.MatchString(fl.Field().String())
	})
	return &Validator{validate: v}
}

// Struct проверяет форму. Нарушения возвращаются как *apperr.ValidationError.
func (v *Validator) Struct(form any) error {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &apperr.ValidationError{Fields: map[string]string{"form": err.Error()}}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = "нарушено правило " + fe.Tag()
		}
		fields[fe.Field()] = msg
	}
	return &apperr.ValidationError{Fields: fields}
}
