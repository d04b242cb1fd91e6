package validation

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"contractaudit/pkg/models"
)

// Lint 不影响通过与否的检查，返回警告列表
func Lint(records []models.ContractRecord) []string {
	warnings := make([]string, 0)
	for i, rec := range records {
		label := fmt.Sprintf("[%d] %s (code_id %s)", i, rec.Name, rec.CodeID)

		if rec.Release.Version != "" {
			if _, err := semver.NewVersion(rec.Release.Version); err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: release.version %q is not a semantic version", label, rec.Release.Version))
			}
		}

		if !rec.Deprecated && rec.Testnet == nil {
			warnings = append(warnings, fmt.Sprintf("%s: active contract has no testnet deployment", label))
		}

		if rec.Deprecated && rec.IsGenesis() {
			warnings = append(warnings, fmt.Sprintf("%s: deprecated contract is marked Genesis", label))
		}
	}
	return warnings
}
