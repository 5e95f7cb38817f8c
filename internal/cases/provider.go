package cases

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrPatientsUnavailable is returned when no patient store is configured.
var ErrPatientsUnavailable = errors.New("patient cases are not available")

// Provider hands out fixtures for training sessions: demo cases from the
// table, or patient records shaped into fixtures.
type Provider struct {
	table    *Table
	patients PatientRepository
}

// NewProvider builds a provider. patients may be nil when no database is
// configured; patient cases then fail with ErrPatientsUnavailable.
func NewProvider(table *Table, patients PatientRepository) *Provider {
	return &Provider{table: table, patients: patients}
}

func (p *Provider) Demo(id string) (*Fixture, error) {
	return p.table.Get(id)
}

func (p *Provider) Patient(ctx context.Context, id uuid.UUID) (*Fixture, error) {
	if p.patients == nil {
		return nil, ErrPatientsUnavailable
	}
	rec, err := p.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromPatient(rec), nil
}

func (p *Provider) Summaries() []Summary {
	all := p.table.All()
	out := make([]Summary, 0, len(all))
	for _, f := range all {
		out = append(out, f.Summary())
	}
	return out
}
