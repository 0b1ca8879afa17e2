// Package postgres adapts strata to PostgreSQL through lib/pq.
//
// PostgreSQL has no unsigned integers: unsigned types are stored in the
// next larger integer type and auto increment columns become serials.
// Enums are VARCHAR columns with a CHECK constraint. Secondary keys are
// created as indexes, so their names must be unique in the schema.
package postgres
