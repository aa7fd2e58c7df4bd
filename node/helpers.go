package node

import (
	"fmt"

	"github.com/diazhh/petroedge-sub003/errors"
)

func invalidNodeConfig(nodeType string, err error) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
		"Registry", "Create", "decode "+nodeType+" config")
}
