package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Appointment-Agent/agent/backend"
	logx "github.com/tanpawarit/Chative-Appointment-Agent/pkg/logger"
)

const defaultTimeout = 15 * time.Second

// Backend is the part of the appointments API the tool depends on.
type Backend interface {
	FindCustomers(ctx context.Context, cpf string) ([]backend.Record, error)
	CreateCustomer(ctx context.Context, name, cpf string) (backend.Record, error)
	FindServices(ctx context.Context, name string) ([]backend.Record, error)
	FindProfessionals(ctx context.Context, q backend.ProfessionalQuery) ([]backend.Record, error)
	CreateAppointment(ctx context.Context, payload backend.AppointmentPayload) (*backend.Confirmation, error)
}

var _ Backend = (*backend.Client)(nil)

type Config struct {
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

type Option func(*Tool)

func WithMetrics(m *Metrics) Option {
	return func(t *Tool) {
		t.metrics = m
	}
}

// Tool books appointments against the backend. It holds no per-call state.
type Tool struct {
	client   Backend
	timeout  time.Duration
	validate *validator.Validate
	metrics  *Metrics
}

func New(client Backend, cfg Config, opts ...Option) (*Tool, error) {
	if client == nil {
		return nil, errors.New("booking: backend client is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	t := &Tool{
		client:   client,
		timeout:  timeout,
		validate: newValidator(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Book resolves the service, the professional and the customer, then submits
// exactly one appointment. Lookups run before the conditional customer
// creation so a request that cannot be booked writes nothing.
func (t *Tool) Book(ctx context.Context, req Request) (res *Result, err error) {
	started := time.Now()
	req = req.normalize()

	logger := log.With().
		Str("tool", "booking").
		Str("customer", logx.MaskIdentifier(req.CustomerCPF)).
		Str("service", req.ServiceName).
		Logger()

	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(KindOf(err))
		}
		t.metrics.observe(outcome, time.Since(started))

		if err != nil {
			logger.Warn().Err(err).Str("outcome", outcome).Dur("elapsed", time.Since(started)).Msg("booking failed")
			return
		}
		logger.Info().Str("outcome", outcome).Int("status", res.StatusCode).Dur("elapsed", time.Since(started)).Msg("booking confirmed")
	}()

	if err := validateRequest(t.validate, req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	service, err := t.resolveService(ctx, req.ServiceName)
	if err != nil {
		return nil, err
	}

	professional, err := t.resolveProfessional(ctx, req.ProfessionalCPF, service)
	if err != nil {
		return nil, err
	}

	customer, created, err := t.resolveCustomer(ctx, req.CustomerCPF, req.CustomerName)
	if err != nil {
		return nil, err
	}

	conf, err := t.client.CreateAppointment(ctx, backend.AppointmentPayload{
		CustomerID:     customer.ID,
		ProfessionalID: professional.ID,
		ServiceID:      service.ID,
		Date:           req.Date,
		Time:           req.Time,
	})
	if err != nil {
		return nil, fromBackend(RoleAppointment, err)
	}

	return &Result{
		Confirmation: conf.Body,
		StatusCode:   conf.StatusCode,
		Resolution: Resolution{
			Customer:        entityOf(customer),
			Professional:    entityOf(professional),
			Service:         entityOf(service),
			CustomerCreated: created,
		},
	}, nil
}

func (t *Tool) resolveService(ctx context.Context, name string) (backend.Record, error) {
	records, err := t.client.FindServices(ctx, name)
	if err != nil {
		return backend.Record{}, fromBackend(RoleService, err)
	}

	switch len(records) {
	case 0:
		return backend.Record{}, unresolved(RoleService, fmt.Sprintf("no service matches %q", name), nil)
	case 1:
		return records[0], nil
	}

	var exact []backend.Record
	for _, rec := range records {
		if strings.EqualFold(strings.TrimSpace(rec.Name), name) {
			exact = append(exact, rec)
		}
	}
	if len(exact) == 1 {
		return exact[0], nil
	}
	return backend.Record{}, unresolved(RoleService,
		fmt.Sprintf("%d services match %q; ask the customer which one", len(records), name), records)
}

// resolveProfessional never guesses: without a CPF the service must be
// offered by exactly one professional.
func (t *Tool) resolveProfessional(ctx context.Context, cpf string, service backend.Record) (backend.Record, error) {
	if cpf != "" {
		records, err := t.client.FindProfessionals(ctx, backend.ProfessionalQuery{CPF: cpf})
		if err != nil {
			return backend.Record{}, fromBackend(RoleProfessional, err)
		}
		switch len(records) {
		case 1:
			return records[0], nil
		case 0:
			return backend.Record{}, unresolved(RoleProfessional,
				fmt.Sprintf("no professional with identifier %s", logx.MaskIdentifier(cpf)), nil)
		default:
			return backend.Record{}, unresolved(RoleProfessional,
				fmt.Sprintf("identifier %s matches %d professionals", logx.MaskIdentifier(cpf), len(records)), records)
		}
	}

	records, err := t.client.FindProfessionals(ctx, backend.ProfessionalQuery{ServiceID: service.ID})
	if err != nil {
		return backend.Record{}, fromBackend(RoleProfessional, err)
	}
	switch len(records) {
	case 1:
		return records[0], nil
	case 0:
		return backend.Record{}, unresolved(RoleProfessional,
			fmt.Sprintf("no professional offers %q", service.Name), nil)
	default:
		return backend.Record{}, unresolved(RoleProfessional,
			fmt.Sprintf("%d professionals offer %q; ask the customer which one", len(records), service.Name), records)
	}
}

func (t *Tool) resolveCustomer(ctx context.Context, cpf, name string) (backend.Record, bool, error) {
	records, err := t.client.FindCustomers(ctx, cpf)
	if err != nil {
		return backend.Record{}, false, fromBackend(RoleCustomer, err)
	}

	switch len(records) {
	case 1:
		return records[0], false, nil
	case 0:
	default:
		// Other customers' records are never handed back as candidates.
		return backend.Record{}, false, unresolved(RoleCustomer,
			fmt.Sprintf("identifier %s matches %d customers", logx.MaskIdentifier(cpf), len(records)), nil)
	}

	if name == "" {
		return backend.Record{}, false, unresolved(RoleCustomer,
			"customer is not registered; the full name is required to register them", nil)
	}

	created, err := t.client.CreateCustomer(ctx, name, cpf)
	if err != nil {
		return backend.Record{}, false, fromBackend(RoleCustomer, err)
	}
	log.Info().Str("customer", logx.MaskIdentifier(cpf)).Msg("customer registered")
	return created, true, nil
}

func entityOf(rec backend.Record) Entity {
	return Entity{ID: rec.ID, Name: rec.Name}
}
