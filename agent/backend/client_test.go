package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
)

func newTestClient(t *testing.T, router http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL, Token: "secret"}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestNewClientRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{BaseURL: "  "}); err == nil {
		t.Fatal("expected error for empty base url")
	}
	if _, err := NewClient(Config{BaseURL: "not a url"}); err == nil {
		t.Fatal("expected error for invalid base url")
	}
}

func TestFindCustomersBareArray(t *testing.T) {
	t.Parallel()

	var gotCPF, gotAuth, gotRequestID string
	router := httprouter.New()
	router.GET("/api/customers", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gotCPF = r.URL.Query().Get("cpf")
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		fmt.Fprint(w, `[{"id":42,"name":"Ana Souza","cpf":"12345678901"}]`)
	})
	client := newTestClient(t, router)

	records, err := client.FindCustomers(context.Background(), "12345678901")
	if err != nil {
		t.Fatalf("FindCustomers() error = %v", err)
	}
	if gotCPF != "12345678901" {
		t.Fatalf("cpf query = %q", gotCPF)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatal("expected X-Request-ID header")
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if string(records[0].ID) != "42" {
		t.Fatalf("unexpected raw id: %s", records[0].ID)
	}
	if records[0].IDString() != "42" || records[0].Name != "Ana Souza" {
		t.Fatalf("unexpected record: %#v", records[0])
	}
}

func TestFindServicesDataEnvelope(t *testing.T) {
	t.Parallel()

	router := httprouter.New()
	router.GET("/api/services", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		fmt.Fprint(w, `{"data":[{"id":"svc-1","name":"Corte"},{"name":"sem id"},{"id":"svc-2","name":"Corte e barba"}]}`)
	})
	client := newTestClient(t, router)

	records, err := client.FindServices(context.Background(), "corte")
	if err != nil {
		t.Fatalf("FindServices() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected records without id to be skipped, got %d", len(records))
	}
	if string(records[0].ID) != `"svc-1"` || records[0].IDString() != "svc-1" {
		t.Fatalf("unexpected first record id: %s", records[0].ID)
	}
}

func TestLookupNotFoundIsEmpty(t *testing.T) {
	t.Parallel()

	router := httprouter.New()
	router.GET("/api/professionals", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if r.URL.Query().Get("service_id") != "7" {
			t.Errorf("unexpected service_id query: %q", r.URL.RawQuery)
		}
		http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
	})
	client := newTestClient(t, router)

	records, err := client.FindProfessionals(context.Background(), ProfessionalQuery{ServiceID: json.RawMessage("7")})
	if err != nil {
		t.Fatalf("FindProfessionals() error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestFindProfessionalsRequiresFilter(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, httprouter.New())
	if _, err := client.FindProfessionals(context.Background(), ProfessionalQuery{}); err == nil {
		t.Fatal("expected error for empty professional query")
	}
}

func TestCreateCustomerPostsNameAndCPF(t *testing.T) {
	t.Parallel()

	var got map[string]string
	router := httprouter.New()
	router.POST("/api/customers", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"cus-9","name":"Ana Souza","cpf":"12345678901"}`)
	})
	client := newTestClient(t, router)

	rec, err := client.CreateCustomer(context.Background(), "Ana Souza", "12345678901")
	if err != nil {
		t.Fatalf("CreateCustomer() error = %v", err)
	}
	if got["name"] != "Ana Souza" || got["cpf"] != "12345678901" {
		t.Fatalf("unexpected request body: %#v", got)
	}
	if rec.IDString() != "cus-9" {
		t.Fatalf("unexpected created id: %s", rec.ID)
	}
}

func TestCreateCustomerWithoutIDFails(t *testing.T) {
	t.Parallel()

	router := httprouter.New()
	router.POST("/api/customers", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		fmt.Fprint(w, `{"ok":true}`)
	})
	client := newTestClient(t, router)

	_, err := client.CreateCustomer(context.Background(), "Ana", "1")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
}

func TestCreateAppointmentReturnsBodyVerbatim(t *testing.T) {
	t.Parallel()

	const body = `{"id": 77, "status":"confirmed",  "starts_at":"2026-10-20T14:00:00"}`
	var payload map[string]json.RawMessage
	router := httprouter.New()
	router.POST("/api/appointments", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, body)
	})
	client := newTestClient(t, router)

	conf, err := client.CreateAppointment(context.Background(), AppointmentPayload{
		CustomerID:     json.RawMessage("42"),
		ProfessionalID: json.RawMessage(`"pro-1"`),
		ServiceID:      json.RawMessage("7"),
		Date:           "2026-10-20",
		Time:           "14:00",
	})
	if err != nil {
		t.Fatalf("CreateAppointment() error = %v", err)
	}
	if conf.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", conf.StatusCode)
	}
	if string(conf.Body) != body {
		t.Fatalf("body was modified: %s", conf.Body)
	}
	if string(payload["customer_id"]) != "42" || string(payload["professional_id"]) != `"pro-1"` {
		t.Fatalf("ids were not passed through raw: %#v", payload)
	}
	if string(payload["date"]) != `"2026-10-20"` || string(payload["time"]) != `"14:00"` {
		t.Fatalf("unexpected date/time: %#v", payload)
	}
}

func TestCreateAppointmentStatusError(t *testing.T) {
	t.Parallel()

	router := httprouter.New()
	router.POST("/api/appointments", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"detail":"Horário indisponível para o profissional"}`)
	})
	client := newTestClient(t, router)

	_, err := client.CreateAppointment(context.Background(), AppointmentPayload{
		CustomerID:     json.RawMessage("1"),
		ProfessionalID: json.RawMessage("2"),
		ServiceID:      json.RawMessage("3"),
	})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusConflict {
		t.Fatalf("unexpected status: %d", statusErr.StatusCode)
	}
	if statusErr.Detail != "Horário indisponível para o profissional" {
		t.Fatalf("unexpected detail: %q", statusErr.Detail)
	}
}

func TestConnectionRefusedIsTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client, err := NewClient(Config{BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	_, err = client.FindServices(context.Background(), "corte")
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestErrorDetail(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail string", 400, `{"detail":"invalid date"}`, "invalid date"},
		{"message field", 422, `{"message":"time is required","code":"VALIDATION_ERROR"}`, "time is required"},
		{"structured detail", 422, `{"detail":[{"loc":["body","date"],"msg":"field required"}]}`, `[{"loc":["body","date"],"msg":"field required"}]`},
		{"plain text", 500, "upstream exploded\n", "upstream exploded"},
		{"empty body", 503, "", "Service Unavailable"},
	}
	for _, tc := range cases {
		if got := errorDetail(tc.status, []byte(tc.body)); got != tc.want {
			t.Fatalf("%s: errorDetail() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestConfirmationBody(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"json object", `{"id":7}`, `{"id":7}`},
		{"json keeps spacing", "{ \"id\": 7 }\n", "{ \"id\": 7 }\n"},
		{"empty", "", "null"},
		{"whitespace", "  \n", "null"},
		{"plain text", "Created\n", `"Created"`},
	}
	for _, tc := range cases {
		got := confirmationBody([]byte(tc.body))
		if string(got) != tc.want {
			t.Fatalf("%s: confirmationBody() = %q, want %q", tc.name, got, tc.want)
		}
		if _, err := json.Marshal(struct {
			Body json.RawMessage `json:"body"`
		}{got}); err != nil {
			t.Fatalf("%s: confirmation does not encode: %v", tc.name, err)
		}
	}
}
