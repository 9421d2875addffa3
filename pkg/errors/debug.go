package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgresDetail is the subset of a driver error worth logging.
type PostgresDetail struct {
	Code       string
	Constraint string
	Table      string
	Detail     string
}

// Trace describes an error chain for request logs.
type Trace struct {
	Code     Code
	Chain    []string
	Postgres *PostgresDetail
}

// TraceOf walks err and collects its typed code, every wrapped layer, and
// the first Postgres error found from either driver.
func TraceOf(err error) Trace {
	var t Trace
	if err == nil {
		return t
	}
	t.Code = CodeOf(err)
	for e := err; e != nil; e = errors.Unwrap(e) {
		t.Chain = append(t.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	t.Postgres = postgresDetail(err)
	return t
}

// Fields flattens the trace into logger fields.
func (t Trace) Fields() map[string]any {
	fields := map[string]any{
		"error_code":  t.Code,
		"error_chain": t.Chain,
	}
	if pg := t.Postgres; pg != nil {
		fields["pg_code"] = pg.Code
		if pg.Constraint != "" {
			fields["pg_constraint"] = pg.Constraint
		}
		if pg.Table != "" {
			fields["pg_table"] = pg.Table
		}
		if pg.Detail != "" {
			fields["pg_detail"] = pg.Detail
		}
	}
	return fields
}

func postgresDetail(err error) *PostgresDetail {
	if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) {
		return &PostgresDetail{
			Code:       pgErr.Code,
			Constraint: pgErr.ConstraintName,
			Table:      pgErr.TableName,
			Detail:     pgErr.Detail,
		}
	}
	if pqErr := (*pq.Error)(nil); errors.As(err, &pqErr) {
		return &PostgresDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Detail:     pqErr.Detail,
		}
	}
	return nil
}
