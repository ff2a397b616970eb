package contracts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"pedeprep/internal/errors"
)

// contractValidate performs the structural checks applied to every loaded
// contract document.
var contractValidate = validator.New()

// ContractFileName returns the canonical file name of one year's contract.
func ContractFileName(year int) string {
	return fmt.Sprintf("data_contract_%d.json", year)
}

// ExportOptions configures a contract export run.
type ExportOptions struct {
	OutputDir       string
	DatasetBasename string
	DatasetSHA256   string
	WriteMarkdown   bool
}

// ExportContracts writes every supported year's contract as versioned JSON,
// optionally with a markdown rendering next to it.
func ExportContracts(opts ExportOptions) error {
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join("docs", "contracts")
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return errors.NewStorageError(
			fmt.Sprintf("failed to create contract directory %s", opts.OutputDir), err)
	}
	generatedAt := time.Now().UTC().Format(time.RFC3339)

	for _, year := range SupportedYears {
		contract, err := ContractForYear(year)
		if err != nil {
			return err
		}
		contract.Metadata.GeneratedAt = generatedAt
		contract.Metadata.DatasetBasename = opts.DatasetBasename
		contract.Metadata.DatasetSHA256 = opts.DatasetSHA256

		payload, err := json.MarshalIndent(contract, "", "  ")
		if err != nil {
			return errors.NewStorageError(
				fmt.Sprintf("failed to encode contract for year %d", year), err)
		}
		jsonPath := filepath.Join(opts.OutputDir, ContractFileName(year))
		if err := os.WriteFile(jsonPath, append(payload, '\n'), 0644); err != nil {
			return errors.NewStorageError(
				fmt.Sprintf("failed to write contract file %s", jsonPath), err)
		}

		if opts.WriteMarkdown {
			mdPath := filepath.Join(opts.OutputDir, fmt.Sprintf("data_contract_%d.md", year))
			if err := os.WriteFile(mdPath, []byte(renderMarkdown(contract)), 0644); err != nil {
				return errors.NewStorageError(
					fmt.Sprintf("failed to write contract file %s", mdPath), err)
			}
		}
	}
	return nil
}

// renderMarkdown builds the human-readable contract table.
func renderMarkdown(contract *YearContract) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Data Contract %d\n\n", contract.Year)
	b.WriteString("| Column | DType | Presence | PII | Rules |\n")
	b.WriteString("|---|---|---|---|---|\n")

	names := make([]string, 0, len(contract.Columns))
	for name := range contract.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := contract.Columns[name]
		rules := make([]string, 0, len(spec.Rules))
		for _, rule := range spec.Rules {
			rules = append(rules, fmt.Sprintf("%s:%s", rule.RuleType, rule.Enforcement))
		}
		pii := "no"
		if spec.PII {
			pii = "yes"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			name, spec.Dtype, spec.Presence, pii, strings.Join(rules, ", "))
	}
	return b.String()
}

// LoadYearContract reads and structurally validates one exported contract.
func LoadYearContract(year int, contractsDir string) (*YearContract, error) {
	path := filepath.Join(contractsDir, ContractFileName(year))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError(
				fmt.Sprintf("contract not found for year %d at %s; export contracts first", year, path), err).
				WithContext("year", year).
				WithContext("path", path)
		}
		return nil, errors.NewStorageError(
			fmt.Sprintf("failed to read contract file %s", path), err)
	}

	var contract YearContract
	if err := json.Unmarshal(data, &contract); err != nil {
		return nil, errors.NewParsingError(
			fmt.Sprintf("malformed contract JSON for year %d at %s", year, path), err)
	}
	if err := contractValidate.Struct(&contract); err != nil {
		return nil, errors.NewValidationError(
			fmt.Sprintf("contract for year %d fails structural validation", year), err).
			WithContext("path", path)
	}
	if contract.Year != year {
		return nil, errors.NewValidationError(
			fmt.Sprintf("contract file %s declares year %d, expected %d", path, contract.Year, year), nil)
	}
	return &contract, nil
}
