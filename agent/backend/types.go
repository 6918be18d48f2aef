package backend

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" default:"http://localhost:8000"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Record is a customer, professional or service as returned by a lookup
// endpoint. ID is kept as raw JSON so numeric and string keys survive the
// round trip into the appointment payload.
type Record struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name,omitempty"`
	CPF  string          `json:"cpf,omitempty"`
}

func (r Record) IDString() string {
	return gjson.ParseBytes(r.ID).String()
}

type ProfessionalQuery struct {
	CPF       string
	ServiceID json.RawMessage
}

type AppointmentPayload struct {
	CustomerID     json.RawMessage `json:"customer_id"`
	ProfessionalID json.RawMessage `json:"professional_id"`
	ServiceID      json.RawMessage `json:"service_id"`
	Date           string          `json:"date"`
	Time           string          `json:"time"`
}

// Confirmation is the appointments endpoint answer, body untouched.
type Confirmation struct {
	StatusCode int
	Body       json.RawMessage
}

// parseRecords accepts a bare array, a {"data": [...]} envelope or a single
// object and returns every element that carries an id.
func parseRecords(body []byte) []Record {
	root := gjson.ParseBytes(body)
	list := root
	if data := root.Get("data"); data.Exists() {
		list = data
	}

	var elems []gjson.Result
	switch {
	case list.IsArray():
		elems = list.Array()
	case list.IsObject():
		elems = []gjson.Result{list}
	}

	records := make([]Record, 0, len(elems))
	for _, el := range elems {
		id := el.Get("id")
		if !id.Exists() || id.Type == gjson.Null || id.Raw == `""` {
			continue
		}
		records = append(records, Record{
			ID:   json.RawMessage(id.Raw),
			Name: el.Get("name").String(),
			CPF:  el.Get("cpf").String(),
		})
	}
	return records
}
