package booking

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Request is the argument record of create_appointment. ProfessionalCPF may
// be empty, in which case the professional is looked up by service.
type Request struct {
	CustomerCPF     string `json:"customer_cpf" validate:"required,numeric,max=20"`
	CustomerName    string `json:"customer_name,omitempty" validate:"max=120"`
	ServiceName     string `json:"service_name" validate:"required,max=120"`
	ProfessionalCPF string `json:"professional_cpf,omitempty" validate:"omitempty,numeric,max=20"`
	Date            string `json:"date" validate:"required,max=64"`
	Time            string `json:"time" validate:"required,max=64"`
}

// Entity is a resolved backend record.
type Entity struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name,omitempty"`
}

type Resolution struct {
	Customer        Entity `json:"customer"`
	Professional    Entity `json:"professional"`
	Service         Entity `json:"service"`
	CustomerCreated bool   `json:"customer_created"`
}

// Result carries the appointments endpoint answer untouched.
type Result struct {
	Confirmation json.RawMessage `json:"confirmation"`
	StatusCode   int             `json:"status_code"`
	Resolution   Resolution      `json:"resolution"`
}

var cpfReplacer = strings.NewReplacer(".", "", "-", "", "/", "", " ", "", "\t", "")

// NormalizeCPF strips the punctuation people type inside a CPF.
func NormalizeCPF(cpf string) string {
	return cpfReplacer.Replace(strings.TrimSpace(cpf))
}

func (r Request) normalize() Request {
	return Request{
		CustomerCPF:     NormalizeCPF(r.CustomerCPF),
		CustomerName:    strings.Join(strings.Fields(r.CustomerName), " "),
		ServiceName:     strings.TrimSpace(r.ServiceName),
		ProfessionalCPF: NormalizeCPF(r.ProfessionalCPF),
		Date:            strings.TrimSpace(r.Date),
		Time:            strings.TrimSpace(r.Time),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "numeric":
		return fe.Field() + " must contain only digits"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}

func validateRequest(v *validator.Validate, req Request) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Error{Kind: KindInvalidRequest, Detail: err.Error(), Err: err}
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, validationMessage(fe))
	}
	return &Error{Kind: KindInvalidRequest, Detail: strings.Join(msgs, "; "), Err: err}
}
