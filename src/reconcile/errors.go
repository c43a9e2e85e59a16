package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dao-forum/reconciler/src/utils/eth"

	"gorm.io/gorm"
)

var (
	ErrOrganizationNotFound = fmt.Errorf("%w: organization", eth.ErrNotFound)
	ErrProposalNotFound     = fmt.Errorf("%w: proposal", eth.ErrNotFound)
	ErrContractsNotFound    = fmt.Errorf("%w: no contracts for organization", eth.ErrNotFound)
	ErrSlugAlreadyAssigned  = errors.New("organization already has a different slug")
	ErrInvalidSlug          = fmt.Errorf("%w: slug must have 1 to 10 characters", eth.ErrConfiguration)
)

// Uniqueness violation reported by postgres or sqlite
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
