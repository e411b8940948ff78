// validate.go — разбор и валидация тел запросов.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/bigkaa/mediadeck/internal/domain/model"
)

// maxBodySize — ограничение размера тела JSON-запроса (1 МБ).
const maxBodySize = 1 << 20

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator возвращает общий экземпляр validator с правилами mediadeck:
//   - slot: пустая строка или одна строчная латинская буква
//   - access: private или public-read
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("slot", func(fl validator.FieldLevel) bool {
			return model.ValidSlot(fl.Field().String())
		})
		_ = validate.RegisterValidation("access", func(fl validator.FieldLevel) bool {
			return model.AccessType(fl.Field().String()).Valid()
		})
	})
	return validate
}

// decodeAndValidate разбирает JSON тело запроса в dst и проверяет теги validate.
// Возвращает сообщение для клиента; пустая строка — запрос корректен.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) string {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return "пустое тело запроса"
		}
		return fmt.Sprintf("некорректный JSON: %v", err)
	}
	if err := getValidator().Struct(dst); err != nil {
		return validationMessage(err)
	}
	return ""
}

// validationMessage собирает сообщения по всем полям с ошибками.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + ": обязательное поле"
	case "min":
		return fmt.Sprintf("%s: минимум %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s: максимум %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s: допустимые значения: %s", field, fe.Param())
	case "slot":
		return field + ": слот должен быть одной строчной латинской буквой или пустым"
	case "access":
		return field + ": допустимые значения: private, public-read"
	case "unique":
		return field + ": значения не должны повторяться"
	default:
		return fmt.Sprintf("%s: не прошло проверку %s", field, fe.Tag())
	}
}
