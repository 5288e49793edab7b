package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DiagnosisColumns is the number of diagnosis code columns on a claim header:
// the admitting diagnosis (da) followed by d1..d25.
const DiagnosisColumns = 26

var ErrNoDiagnosisCodes = errors.New("claims: at least one diagnosis code is required")

// Query selects the claims that feed the counts.
type Query struct {
	// DiagnosisCodes are the ICD-9 codes of interest; a claim qualifies if any of its
	// diagnosis columns holds one of them.
	DiagnosisCodes []string
	// ProcedureCodes are the CPT codes of interest on service lines.
	ProcedureCodes []string
	// ExcludedDiagnoses is a SQL LIKE pattern (e.g. "152.%"); claims with any
	// diagnosis column matching it are dropped. Empty disables the exclusion.
	ExcludedDiagnoses string
}

// Validate checks that the query can select anything.
func (q Query) Validate() error {
	if len(q.DiagnosisCodes) == 0 {
		return ErrNoDiagnosisCodes
	}
	return nil
}

// diagnosisColumnList returns "da, d1, ..., d25".
func diagnosisColumnList() string {
	cols := make([]string, 0, DiagnosisColumns)
	cols = append(cols, "da")
	for i := 1; i < DiagnosisColumns; i++ {
		cols = append(cols, fmt.Sprintf("d%d", i))
	}
	return strings.Join(cols, ", ")
}

// countsQuery aggregates distinct patients per doctor. $1 diagnosis codes,
// $2 exclusion pattern, $3 procedure codes. NULL diagnosis columns never
// match the exclusion pattern.
var countsQuery = fmt.Sprintf(`
WITH diagnosis AS (
    SELECT encounter_key, doctor_id, patient_id
    FROM medical_headers
    WHERE ARRAY[%[1]s]::text[] && $1::text[]
      AND ($2::text = '' OR NOT EXISTS (
            SELECT 1 FROM unnest(ARRAY[%[1]s]::text[]) AS code
            WHERE code LIKE $2::text))
),
procedures AS (
    SELECT encounter_key
    FROM medical_service_lines
    WHERE procedure = ANY($3::text[])
),
diagnosed AS (
    SELECT doctor_id, COUNT(DISTINCT patient_id) AS num_diagnosed
    FROM diagnosis
    GROUP BY doctor_id
),
operated AS (
    SELECT d.doctor_id, COUNT(DISTINCT d.patient_id) AS num_operated_on
    FROM diagnosis AS d
    INNER JOIN procedures AS p ON d.encounter_key = p.encounter_key
    GROUP BY d.doctor_id
)
SELECT dg.doctor_id::text, dg.num_diagnosed, COALESCE(op.num_operated_on, 0)
FROM diagnosed AS dg
LEFT JOIN operated AS op ON op.doctor_id = dg.doctor_id
ORDER BY dg.num_diagnosed DESC, dg.doctor_id`, diagnosisColumnList())

// Loader reads counts from a Postgres claims database with the
// medical_headers / medical_service_lines layout.
type Loader struct {
	pool  *pgxpool.Pool
	owned bool
	query Query
}

// NewLoader connects to the database at connStr and verifies the connection.
func NewLoader(ctx context.Context, connStr string, query Query) (*Loader, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection: %w", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Loader{pool: pool, owned: true, query: query}, nil
}

// NewLoaderFromPool wraps an existing pool. The caller keeps ownership of the pool.
func NewLoaderFromPool(pool *pgxpool.Pool, query Query) (*Loader, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return &Loader{pool: pool, query: query}, nil
}

// Counts returns one record per doctor with at least one qualifying diagnosis,
// ordered by diagnosed count (descending), then doctor id. Doctors without
// a qualifying procedure get OperatedOn = 0.
func (l *Loader) Counts(ctx context.Context) ([]Counts, error) {
	procedures := l.query.ProcedureCodes
	if procedures == nil {
		procedures = []string{}
	}

	rows, err := l.pool.Query(ctx, countsQuery,
		l.query.DiagnosisCodes,
		l.query.ExcludedDiagnoses,
		procedures,
	)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}

	counts, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Counts])
	if err != nil {
		return nil, fmt.Errorf("collect counts: %w", err)
	}

	slog.Debug("claims counts loaded",
		"doctors", len(counts),
		"diagnosis_codes", len(l.query.DiagnosisCodes),
		"procedure_codes", len(procedures))
	return counts, nil
}

// Close releases the connection pool if the loader opened it.
func (l *Loader) Close() {
	if l.owned {
		l.pool.Close()
	}
}
