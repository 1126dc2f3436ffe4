// Copyright 2025 The propeval authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package archive keeps a permanent record of finished estimations.
// Besides auditing, the records feed the reweighting layer, which can
// answer a property from an earlier estimation of the same substance.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/layers"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Estimation is a single archived per-property result.
type Estimation struct {
	RequestID            string
	PropertyID           string
	PropertyType         dataset.PropertyType
	SubstanceID          string
	ForceField           string
	TemperatureK         float64
	PressureKPa          float64
	MeasuredValue        float64
	MeasuredUncertainty  *float64
	EstimatedValue       float64
	EstimatedUncertainty float64
	Layer                string
	FinishedAt           time.Time
}

type ListFilter struct {
	PropertyType dataset.PropertyType
	ForceField   string
}

type Database struct {
	db *sql.DB
}

func (database *Database) createEstimationsTable() error {
	_, err := database.db.Exec(
		"CREATE TABLE estimations (" +
			"id INTEGER PRIMARY KEY AUTOINCREMENT, " +
			"request_id TEXT NOT NULL, " +
			"property_id TEXT NOT NULL, " +
			"property_type TEXT NOT NULL, " +
			"substance TEXT NOT NULL, " +
			"force_field TEXT NOT NULL, " +
			"temperature FLOAT NOT NULL, " +
			"pressure FLOAT NOT NULL, " +
			"measured_value FLOAT NOT NULL, " +
			"measured_uncertainty FLOAT, " +
			"estimated_value FLOAT NOT NULL, " +
			"estimated_uncertainty FLOAT NOT NULL, " +
			"layer TEXT NOT NULL, " +
			"finished_at INTEGER NOT NULL" +
			")",
	)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	log.Info().Msg("created table `estimations`")
	return nil
}

func (database *Database) tableExists(tn string) (bool, error) {
	ans := database.db.QueryRow(
		fmt.Sprintf("SELECT name FROM sqlite_master WHERE type='table' AND name='%s'", tn))
	var nm sql.NullString
	err := ans.Scan(&nm)
	if err == sql.ErrNoRows {
		return false, nil

	} else if err != nil {
		return false, fmt.Errorf("failed to determine existence of table %s: %w", tn, err)
	}
	return true, nil
}

func (database *Database) Init() error {
	ex, err := database.tableExists("estimations")
	if err != nil {
		return fmt.Errorf("failed to init table estimations: %w", err)
	}
	if ex {
		log.Info().Str("table", "estimations").Msg("table already exists")

	} else {
		if err := database.createEstimationsTable(); err != nil {
			return fmt.Errorf("failed to create table estimations: %w", err)
		}
	}
	return nil
}

func (database *Database) AddEstimation(rec Estimation) error {
	finishedAt := rec.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	var measuredUnc sql.NullFloat64
	if rec.MeasuredUncertainty != nil {
		measuredUnc = sql.NullFloat64{Float64: *rec.MeasuredUncertainty, Valid: true}
	}
	_, err := database.db.Exec(
		"INSERT INTO estimations (request_id, property_id, property_type, substance, "+
			"force_field, temperature, pressure, measured_value, measured_uncertainty, "+
			"estimated_value, estimated_uncertainty, layer, finished_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.RequestID,
		rec.PropertyID,
		rec.PropertyType,
		rec.SubstanceID,
		rec.ForceField,
		rec.TemperatureK,
		rec.PressureKPa,
		rec.MeasuredValue,
		measuredUnc,
		rec.EstimatedValue,
		rec.EstimatedUncertainty,
		rec.Layer,
		finishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to add estimation: %w", err)
	}
	return nil
}

func (database *Database) scanEstimations(rows *sql.Rows) ([]Estimation, error) {
	ans := make([]Estimation, 0, 100)
	for rows.Next() {
		var rec Estimation
		var measuredUnc sql.NullFloat64
		var finishedAt int64
		err := rows.Scan(
			&rec.RequestID,
			&rec.PropertyID,
			&rec.PropertyType,
			&rec.SubstanceID,
			&rec.ForceField,
			&rec.TemperatureK,
			&rec.PressureKPa,
			&rec.MeasuredValue,
			&measuredUnc,
			&rec.EstimatedValue,
			&rec.EstimatedUncertainty,
			&rec.Layer,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch estimations: %w", err)
		}
		if measuredUnc.Valid {
			v := measuredUnc.Float64
			rec.MeasuredUncertainty = &v
		}
		rec.FinishedAt = time.Unix(finishedAt, 0)
		ans = append(ans, rec)
	}
	return ans, nil
}

const selectColumns = "request_id, property_id, property_type, substance, force_field, " +
	"temperature, pressure, measured_value, measured_uncertainty, estimated_value, " +
	"estimated_uncertainty, layer, finished_at"

// GetAllEstimations loads archived estimations, optionally restricted
// by property type and/or force field.
func (database *Database) GetAllEstimations(filter ListFilter) ([]Estimation, error) {
	query := "SELECT " + selectColumns + " FROM estimations WHERE 1 = 1"
	args := make([]any, 0, 2)
	if filter.PropertyType != "" {
		query += " AND property_type = ?"
		args = append(args, filter.PropertyType)
	}
	if filter.ForceField != "" {
		query += " AND force_field = ?"
		args = append(args, filter.ForceField)
	}
	query += " ORDER BY finished_at"
	rows, err := database.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch estimations: %w", err)
	}
	defer rows.Close()
	return database.scanEstimations(rows)
}

// FindEstimations implements layers.EstimationCache for the
// reweighting layer.
func (database *Database) FindEstimations(
	substanceID string,
	propertyType dataset.PropertyType,
	forceField string,
) ([]layers.CachedEstimation, error) {
	rows, err := database.db.Query(
		"SELECT estimated_value, estimated_uncertainty, temperature "+
			"FROM estimations "+
			"WHERE substance = ? AND property_type = ? AND force_field = ?",
		substanceID,
		propertyType,
		forceField,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search estimations: %w", err)
	}
	defer rows.Close()
	ans := make([]layers.CachedEstimation, 0, 10)
	for rows.Next() {
		var rec layers.CachedEstimation
		if err := rows.Scan(&rec.Value, &rec.Uncertainty, &rec.TemperatureK); err != nil {
			return nil, fmt.Errorf("failed to search estimations: %w", err)
		}
		ans = append(ans, rec)
	}
	return ans, nil
}

func (database *Database) Close() error {
	if database != nil && database.db != nil {
		return database.db.Close()
	}
	return nil
}

func NewDatabase(path string) (*Database, error) {
	dbConn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	return &Database{db: dbConn}, nil
}
