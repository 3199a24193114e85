// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package courier

import "fmt"

// Error is a coded protocol-level error, used where failures cross the
// HTTP surfaces of the guardian and executor services.
type Error struct {
	Code    int32
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("courier error %d: %s", e.Code, e.Message)
}
