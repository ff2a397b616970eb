// Package contracts declares the per-year data contracts for the PEDE
// datasets: expected columns, resolved dtypes, presence origin, PII marking
// and the validation rules applied after standardization.
package contracts

import (
	"fmt"
	"sort"

	"pedeprep/internal/errors"
)

// Presence tells whether a column existed in the year's source sheet or was
// added structurally during cross-year alignment.
type Presence string

const (
	PresenceOriginal           Presence = "original"
	PresenceStructuralOptional Presence = "structural_optional"
)

// Enforcement is the severity of a rule violation.
type Enforcement string

const (
	EnforcementError   Enforcement = "error"
	EnforcementWarning Enforcement = "warning"
	EnforcementInfo    Enforcement = "info"
)

// Rule types understood by the validator. RuleIdentifier is built in and
// runs for every year without a contract declaration.
const (
	RuleDtype      = "dtype"
	RuleMissing    = "missing"
	RuleDomain     = "domain"
	RuleSchema     = "schema"
	RuleIdentifier = "identifier"
)

// Domain kinds understood by the validator.
const (
	DomainNone      = "none"
	DomainRange     = "range"
	DomainSet       = "set"
	DomainRegex     = "regex"
	DomainDateRange = "date_range"
)

// RuleSpec carries the rule parameters. Which fields apply depends on the
// rule type and domain kind.
type RuleSpec struct {
	ExpectedDtype string   `json:"expected_dtype,omitempty"`
	AllowMissing  *bool    `json:"allow_missing,omitempty"`
	Kind          string   `json:"kind,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	Allowed       []string `json:"allowed,omitempty"`
	Pattern       string   `json:"pattern,omitempty"`
	Start         string   `json:"start,omitempty"`
	End           string   `json:"end,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// ColumnRule is one validation rule declaration for a column.
type ColumnRule struct {
	RuleType    string      `json:"rule_type" validate:"required,oneof=dtype missing domain"`
	Enforcement Enforcement `json:"enforcement" validate:"required,oneof=error warning info"`
	Spec        RuleSpec    `json:"spec"`
	Notes       string      `json:"notes,omitempty"`
}

// ColumnSpec is the contract for a single column.
type ColumnSpec struct {
	Name        string       `json:"name" validate:"required"`
	Dtype       string       `json:"dtype" validate:"required"`
	Presence    Presence     `json:"presence" validate:"required,oneof=original structural_optional"`
	PII         bool         `json:"pii"`
	Rules       []ColumnRule `json:"rules" validate:"required,min=1,dive"`
	Description string       `json:"description,omitempty"`
}

// Metadata carries contract lineage.
type Metadata struct {
	ContractVersion string `json:"contract_version" validate:"required"`
	RowsExpected    int    `json:"rows_expected"`
	DatasetBasename string `json:"dataset_basename,omitempty"`
	DatasetSHA256   string `json:"dataset_sha256,omitempty"`
	GeneratedAt     string `json:"generated_at,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// YearContract is the contract container for one reference year.
type YearContract struct {
	Year     int                    `json:"year" validate:"required"`
	Columns  map[string]*ColumnSpec `json:"columns" validate:"required,min=1,dive,required"`
	Metadata Metadata               `json:"metadata"`
}

// ContractVersion is bumped whenever rule semantics change.
const ContractVersion = "1.0.0"

// SupportedYears lists the reference years with a declared contract.
var SupportedYears = []int{2022, 2023, 2024}

// RowsExpectedByYear pins the known sheet sizes for lineage checks.
var RowsExpectedByYear = map[int]int{
	2022: 860,
	2023: 1014,
	2024: 1156,
}

// PIIColumns must never reach a feature matrix or an exported report.
var PIIColumns = map[string]bool{
	"RA":         true,
	"Nome_Anon":  true,
	"Avaliador1": true,
	"Avaliador2": true,
	"Avaliador3": true,
	"Avaliador4": true,
	"Avaliador5": true,
	"Avaliador6": true,
}

// OpenDomainColumns carry free text or high-cardinality codes; no strict
// enumeration applies.
var OpenDomainColumns = map[string]bool{
	"Escola":                true,
	"Turma":                 true,
	"Instituição de ensino": true,
	"Fase":                  true,
	"Fase_Ideal":            true,
}

var numericRange0To105 = map[string]bool{
	"INDE":      true,
	"IAA":       true,
	"IAN":       true,
	"IDA":       true,
	"IEG":       true,
	"IPS":       true,
	"IPP":       true,
	"IPV":       true,
	"Mat":       true,
	"Por":       true,
	"Ing":       true,
	"INDE 22":   true,
	"INDE 23":   true,
	"INDE 2023": true,
	"INDE 2024": true,
}

var pedraColumns = map[string]bool{
	"Pedra_Ano":  true,
	"Pedra 20":   true,
	"Pedra 21":   true,
	"Pedra 22":   true,
	"Pedra 23":   true,
	"Pedra 2023": true,
	"Pedra 2024": true,
}

// FinalDtypes maps every canonical column to its resolved dtype name after
// standardization.
var FinalDtypes = map[string]string{
	"RA":                   "string",
	"Ano ingresso":         "Int64",
	"Atingiu PV":           "string",
	"Ativo/ Inativo":       "string",
	"Ativo/ Inativo__dup1": "string",
	"Avaliador1":           "string",
	"Avaliador2":           "string",
	"Avaliador3":           "string",
	"Avaliador4":           "string",
	"Avaliador5":           "string",
	"Avaliador6":           "string",
	"Cf":                   "Float64",
	"Cg":                   "Float64",
	"Ct":                   "Float64",
	"Data_Nasc":            "datetime64[ns]",
	"Defasagem":            "Int64",
	"Destaque IDA":         "string",
	"Destaque IEG":         "string",
	"Destaque IPV":         "string",
	"Destaque IPV__dup1":   "string",
	"Escola":               "string",
	"Fase":                 "string",
	"Fase_Ideal":           "string",
	"Gênero":               "string",
	"IAA":                  "Float64",
	"IAN":                  "Float64",
	"IDA":                  "Float64",
	"IEG":                  "Float64",
	"INDE":                 "Float64",
	"INDE 2023":            "Float64",
	"INDE 2024":            "Float64",
	"INDE 22":              "Float64",
	"INDE 23":              "Float64",
	"IPP":                  "Float64",
	"IPS":                  "Float64",
	"IPV":                  "Float64",
	"Idade":                "Int64",
	"Indicado":             "string",
	"Ing":                  "Float64",
	"Instituição de ensino": "string",
	"Mat":            "Float64",
	"Nome_Anon":      "string",
	"Nº Av":          "Int64",
	"Pedra 20":       "string",
	"Pedra 2023":     "string",
	"Pedra 2024":     "string",
	"Pedra 21":       "string",
	"Pedra 22":       "string",
	"Pedra 23":       "string",
	"Pedra_Ano":      "string",
	"Por":            "Float64",
	"Rec Av1":        "string",
	"Rec Av2":        "string",
	"Rec Av3":        "string",
	"Rec Av4":        "string",
	"Rec Psicologia": "Float64",
	"Turma":          "string",
}

// OriginalColumnsByYear lists the columns physically present in each year's
// source sheet before alignment.
var OriginalColumnsByYear = map[int]map[string]bool{
	2022: setOf(
		"Ano ingresso", "Atingiu PV", "Avaliador1", "Avaliador2", "Avaliador3",
		"Avaliador4", "Cf", "Cg", "Ct", "Data_Nasc", "Defasagem", "Destaque IDA",
		"Destaque IEG", "Destaque IPV", "Fase", "Fase_Ideal", "Gênero", "IAA",
		"IAN", "IDA", "IEG", "INDE", "INDE 22", "IPS", "IPV", "Idade", "Indicado",
		"Ing", "Instituição de ensino", "Mat", "Nome_Anon", "Nº Av", "Pedra 20",
		"Pedra 21", "Pedra 22", "Pedra_Ano", "Por", "RA", "Rec Av1", "Rec Av2",
		"Rec Av3", "Rec Av4", "Rec Psicologia", "Turma",
	),
	2023: setOf(
		"Ano ingresso", "Atingiu PV", "Avaliador1", "Avaliador2", "Avaliador3",
		"Avaliador4", "Cf", "Cg", "Ct", "Data_Nasc", "Defasagem", "Destaque IDA",
		"Destaque IEG", "Destaque IPV", "Destaque IPV__dup1", "Fase", "Fase_Ideal",
		"Gênero", "IAA", "IAN", "IDA", "IEG", "INDE", "INDE 2023", "INDE 22",
		"INDE 23", "IPP", "IPS", "IPV", "Idade", "Indicado", "Ing",
		"Instituição de ensino", "Mat", "Nome_Anon", "Nº Av", "Pedra 20",
		"Pedra 2023", "Pedra 21", "Pedra 22", "Pedra 23", "Pedra_Ano", "Por",
		"RA", "Rec Av1", "Rec Av2", "Rec Av3", "Rec Av4", "Rec Psicologia", "Turma",
	),
	2024: setOf(
		"Ano ingresso", "Atingiu PV", "Ativo/ Inativo", "Ativo/ Inativo__dup1",
		"Avaliador1", "Avaliador2", "Avaliador3", "Avaliador4", "Avaliador5",
		"Avaliador6", "Cf", "Cg", "Ct", "Data_Nasc", "Defasagem", "Destaque IDA",
		"Destaque IEG", "Destaque IPV", "Escola", "Fase", "Fase_Ideal", "Gênero",
		"IAA", "IAN", "IDA", "IEG", "INDE", "INDE 2024", "INDE 22", "INDE 23",
		"IPP", "IPS", "IPV", "Idade", "Indicado", "Ing", "Instituição de ensino",
		"Mat", "Nome_Anon", "Nº Av", "Pedra 20", "Pedra 2024", "Pedra 21",
		"Pedra 22", "Pedra 23", "Pedra_Ano", "Por", "RA", "Rec Av1", "Rec Av2",
		"Rec Psicologia", "Turma",
	),
}

func setOf(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, name := range names {
		out[name] = true
	}
	return out
}

func boolPtr(b bool) *bool       { return &b }
func floatPtr(f float64) *float64 { return &f }

func presenceFor(year int, column string) Presence {
	if OriginalColumnsByYear[year][column] {
		return PresenceOriginal
	}
	return PresenceStructuralOptional
}

func dtypeRule(dtype string) ColumnRule {
	return ColumnRule{
		RuleType:    RuleDtype,
		Enforcement: EnforcementError,
		Spec:        RuleSpec{ExpectedDtype: dtype},
	}
}

func missingRule(year int, column string, presence Presence) ColumnRule {
	if presence == PresenceStructuralOptional {
		return ColumnRule{
			RuleType:    RuleMissing,
			Enforcement: EnforcementInfo,
			Spec:        RuleSpec{AllowMissing: boolPtr(true)},
			Notes:       "Structural column added by cross-year alignment.",
		}
	}

	switch column {
	case "RA", "Idade", "Defasagem", "Gênero", "Ano ingresso":
		return ColumnRule{
			RuleType:    RuleMissing,
			Enforcement: EnforcementError,
			Spec:        RuleSpec{AllowMissing: boolPtr(false)},
		}
	case "Data_Nasc":
		return ColumnRule{
			RuleType:    RuleMissing,
			Enforcement: EnforcementWarning,
			Spec:        RuleSpec{AllowMissing: boolPtr(false)},
		}
	case "Ing":
		return ColumnRule{
			RuleType:    RuleMissing,
			Enforcement: EnforcementInfo,
			Spec:        RuleSpec{AllowMissing: boolPtr(true)},
			Notes:       "Historically high missingness in this variable.",
		}
	case "Nº Av":
		if year == 2023 {
			return ColumnRule{
				RuleType:    RuleMissing,
				Enforcement: EnforcementWarning,
				Spec:        RuleSpec{AllowMissing: boolPtr(true)},
			}
		}
		return ColumnRule{
			RuleType:    RuleMissing,
			Enforcement: EnforcementError,
			Spec:        RuleSpec{AllowMissing: boolPtr(false)},
		}
	case "Cg", "Cf", "Ct":
		if year == 2022 {
			return ColumnRule{
				RuleType:    RuleMissing,
				Enforcement: EnforcementError,
				Spec:        RuleSpec{AllowMissing: boolPtr(false)},
			}
		}
		return ColumnRule{
			RuleType:    RuleMissing,
			Enforcement: EnforcementInfo,
			Spec:        RuleSpec{AllowMissing: boolPtr(true)},
			Notes:       "Structurally absent for this year.",
		}
	case "Indicado", "Atingiu PV":
		if year == 2022 {
			return ColumnRule{
				RuleType:    RuleMissing,
				Enforcement: EnforcementError,
				Spec:        RuleSpec{AllowMissing: boolPtr(false)},
			}
		}
		return ColumnRule{
			RuleType:    RuleMissing,
			Enforcement: EnforcementInfo,
			Spec:        RuleSpec{AllowMissing: boolPtr(true)},
			Notes:       "Column present but unfilled this year.",
		}
	}

	switch {
	case column == "INDE" || column == "IAA" || column == "IAN" || column == "IDA" ||
		column == "IEG" || column == "IPS" || column == "IPP" || column == "IPV" ||
		column == "Mat" || column == "Por":
		return ColumnRule{
			RuleType:    RuleMissing,
			Enforcement: EnforcementWarning,
			Spec:        RuleSpec{AllowMissing: boolPtr(true)},
		}
	case OpenDomainColumns[column], column == "Ativo/ Inativo", column == "Ativo/ Inativo__dup1":
		return ColumnRule{
			RuleType:    RuleMissing,
			Enforcement: EnforcementWarning,
			Spec:        RuleSpec{AllowMissing: boolPtr(true)},
		}
	}

	return ColumnRule{
		RuleType:    RuleMissing,
		Enforcement: EnforcementInfo,
		Spec:        RuleSpec{AllowMissing: boolPtr(true)},
	}
}

func domainRule(year int, column string, presence Presence) ColumnRule {
	rangeRule := func(enforcement Enforcement, min, max float64, notes string) ColumnRule {
		return ColumnRule{
			RuleType:    RuleDomain,
			Enforcement: enforcement,
			Spec:        RuleSpec{Kind: DomainRange, Min: floatPtr(min), Max: floatPtr(max), Notes: notes},
		}
	}

	switch {
	case column == "Data_Nasc":
		return ColumnRule{
			RuleType:    RuleDomain,
			Enforcement: EnforcementWarning,
			Spec: RuleSpec{
				Kind:  DomainDateRange,
				Start: "1990-01-01",
				End:   "2030-12-31",
				Notes: "Plausible birth date range after standardization.",
			},
		}
	case column == "Idade":
		return rangeRule(EnforcementError, 3, 30, "")
	case column == "Defasagem":
		return rangeRule(EnforcementError, -10, 10, "")
	case numericRange0To105[column]:
		return rangeRule(EnforcementError, 0, 10.5, "")
	case column == "Nº Av":
		return rangeRule(EnforcementError, 0, 10, "")
	case column == "Ano ingresso":
		return rangeRule(EnforcementError, 2010, 2030, "")
	case column == "Cg":
		enforcement := EnforcementInfo
		if year == 2022 {
			enforcement = EnforcementWarning
		}
		return rangeRule(enforcement, 0, 1000, "Semantics vary by year; tighten with business evidence.")
	case column == "Cf":
		enforcement := EnforcementInfo
		if year == 2022 {
			enforcement = EnforcementWarning
		}
		return rangeRule(enforcement, 0, 300, "Semantics vary by year; tighten with business evidence.")
	case column == "Ct":
		enforcement := EnforcementInfo
		if year == 2022 {
			enforcement = EnforcementWarning
		}
		return rangeRule(enforcement, 0, 50, "Semantics vary by year; tighten with business evidence.")
	case column == "Gênero":
		return ColumnRule{
			RuleType:    RuleDomain,
			Enforcement: EnforcementError,
			Spec:        RuleSpec{Kind: DomainSet, Allowed: []string{"Feminino", "Masculino"}},
		}
	case pedraColumns[column]:
		return ColumnRule{
			RuleType:    RuleDomain,
			Enforcement: EnforcementWarning,
			Spec: RuleSpec{
				Kind:    DomainSet,
				Allowed: []string{"Ametista", "Ágata", "Quartzo", "Topázio"},
				Notes:   "Missing allowed; invalid tokens must become NA upstream.",
			},
		}
	case column == "Indicado", column == "Atingiu PV":
		return ColumnRule{
			RuleType:    RuleDomain,
			Enforcement: EnforcementWarning,
			Spec:        RuleSpec{Kind: DomainSet, Allowed: []string{"Sim", "Não"}},
		}
	case column == "Ativo/ Inativo" && year == 2024 && presence == PresenceOriginal:
		return ColumnRule{
			RuleType:    RuleDomain,
			Enforcement: EnforcementWarning,
			Spec:        RuleSpec{Kind: DomainSet, Allowed: []string{"Cursando"}},
		}
	case OpenDomainColumns[column]:
		return ColumnRule{
			RuleType:    RuleDomain,
			Enforcement: EnforcementInfo,
			Spec:        RuleSpec{Kind: DomainNone, Notes: "Open domain / high cardinality; no strict enumeration."},
		}
	case column == "RA":
		return ColumnRule{
			RuleType:    RuleDomain,
			Enforcement: EnforcementInfo,
			Spec:        RuleSpec{Kind: DomainNone, Notes: "Operational identifier; never a feature."},
		}
	case presence == PresenceStructuralOptional:
		return ColumnRule{
			RuleType:    RuleDomain,
			Enforcement: EnforcementInfo,
			Spec:        RuleSpec{Kind: DomainNone, Notes: "Structural optional column this year."},
		}
	}

	return ColumnRule{
		RuleType:    RuleDomain,
		Enforcement: EnforcementInfo,
		Spec:        RuleSpec{Kind: DomainNone},
	}
}

func descriptionFor(column string) string {
	switch column {
	case "RA":
		return "Student identifier (join key and audit only)."
	case "Defasagem":
		return "Academic delay indicator."
	case "Data_Nasc":
		return "Standardized birth date."
	case "Nome_Anon":
		return "Sensitive field; 2022 data may not be fully anonymized."
	default:
		return ""
	}
}

func buildColumnSpec(year int, column string) *ColumnSpec {
	dtype := FinalDtypes[column]
	presence := presenceFor(year, column)
	return &ColumnSpec{
		Name:     column,
		Dtype:    dtype,
		Presence: presence,
		PII:      PIIColumns[column],
		Rules: []ColumnRule{
			dtypeRule(dtype),
			missingRule(year, column, presence),
			domainRule(year, column, presence),
		},
		Description: descriptionFor(column),
	}
}

// ContractForYear builds a fresh contract for one supported year. Callers
// own the result and may mutate metadata.
func ContractForYear(year int) (*YearContract, error) {
	supported := false
	for _, y := range SupportedYears {
		if y == year {
			supported = true
			break
		}
	}
	if !supported {
		return nil, errors.NewConfigError(
			fmt.Sprintf("invalid contract year %d; supported years: %v", year, SupportedYears), nil).
			WithContext("year", year)
	}

	columns := make(map[string]*ColumnSpec, len(FinalDtypes))
	names := make([]string, 0, len(FinalDtypes))
	for column := range FinalDtypes {
		names = append(names, column)
	}
	sort.Strings(names)
	for _, column := range names {
		columns[column] = buildColumnSpec(year, column)
	}

	return &YearContract{
		Year:    year,
		Columns: columns,
		Metadata: Metadata{
			ContractVersion: ContractVersion,
			RowsExpected:    RowsExpectedByYear[year],
			Notes:           "Presence distinguishes the year's original columns from structural alignment columns.",
		},
	}, nil
}
