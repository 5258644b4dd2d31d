package domain

import (
	"fmt"
	"quorum/errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// GroupID names a room. It is also a key segment in the stores,
// hence the ban on ':'.
type GroupID string

const groupIDRules = "required,max=128,printascii,excludesall=:"

var validate = validator.New()

// ParseGroupID trims and validates a raw group identifier.
func ParseGroupID(raw string) (GroupID, error) {
	id := strings.TrimSpace(raw)
	if err := validate.Var(id, groupIDRules); err != nil {
		return "", fmt.Errorf("%w: group_id %q: %s", errors.ErrValidation, raw, err)
	}
	return GroupID(id), nil
}

// ParseGroupIDs keeps the valid identifiers of a comma separated list.
func ParseGroupIDs(list string) []GroupID {
	var ids []GroupID
	for _, raw := range strings.Split(list, ",") {
		if id, err := ParseGroupID(raw); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (g GroupID) String() string { return string(g) }
