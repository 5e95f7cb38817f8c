package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type PatientRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*PatientRecord, error)
	List(ctx context.Context, limit, offset int) ([]*PatientRecord, error)
	Save(ctx context.Context, p *PatientRecord) error
}

type postgresRepo struct {
	db *sql.DB
}

func NewPatientRepository(db *sql.DB) PatientRepository {
	return &postgresRepo{db: db}
}

const patientColumns = `id, name, age, gender, medical_history, physical_exam, symptoms, vitals, working_diagnosis, differentials, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*PatientRecord, error) {
	var p PatientRecord
	var historyJSON, examJSON, symptomsJSON, vitalsJSON []byte
	var workingDx sql.NullString

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Age,
		&p.Gender,
		&historyJSON,
		&examJSON,
		&symptomsJSON,
		&vitalsJSON,
		&workingDx,
		pq.Array(&p.Differentials),
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.WorkingDiagnosis = workingDx.String

	if err := unmarshalSection(historyJSON, &p.MedicalHistory); err != nil {
		return nil, fmt.Errorf("failed to unmarshal medical history: %w", err)
	}
	if err := unmarshalSection(examJSON, &p.PhysicalExam); err != nil {
		return nil, fmt.Errorf("failed to unmarshal physical exam: %w", err)
	}
	if err := unmarshalSection(symptomsJSON, &p.Symptoms); err != nil {
		return nil, fmt.Errorf("failed to unmarshal symptoms: %w", err)
	}
	if err := unmarshalSection(vitalsJSON, &p.Vitals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vitals: %w", err)
	}
	return &p, nil
}

// unmarshalSection leaves dst nil for SQL NULL or JSON null.
func unmarshalSection(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*PatientRecord, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`

	p, err := scanPatient(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

func (r *postgresRepo) List(ctx context.Context, limit, offset int) ([]*PatientRecord, error) {
	query := `SELECT ` + patientColumns + ` FROM patients ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PatientRecord
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *postgresRepo) Save(ctx context.Context, p *PatientRecord) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	historyJSON, err := marshalSection(p.MedicalHistory)
	if err != nil {
		return err
	}
	examJSON, err := marshalSection(p.PhysicalExam)
	if err != nil {
		return err
	}
	symptomsJSON, err := marshalSection(p.Symptoms)
	if err != nil {
		return err
	}
	vitalsJSON, err := marshalSection(p.Vitals)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = $2,
			age = $3,
			gender = $4,
			medical_history = $5,
			physical_exam = $6,
			symptoms = $7,
			vitals = $8,
			working_diagnosis = $9,
			differentials = $10
	`
	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Age, p.Gender, historyJSON, examJSON, symptomsJSON, vitalsJSON,
		nullString(p.WorkingDiagnosis), pq.Array(p.Differentials), p.CreatedAt)
	return err
}

// marshalSection stores a nil section as SQL NULL.
func marshalSection[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
