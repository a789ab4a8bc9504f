package schemas

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTransferMemo parses the "<ACTION>:<farm_id>" form carried by inbound
// transfers.
func ParseTransferMemo(msg string) (*TransferMemo, error) {
	parts := strings.Split(strings.TrimSpace(msg), ":")
	if len(parts) < 2 {
		return nil, &ValidationError{Field: "msg", Message: fmt.Sprintf("malformed transfer message %q", msg)}
	}

	farmID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return nil, &ValidationError{Field: "farm_id", Message: fmt.Sprintf("invalid farm id %q", parts[1])}
	}

	memo := &TransferMemo{Action: parts[0], FarmID: farmID}
	if err := memo.Validate(); err != nil {
		return nil, err
	}
	return memo, nil
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
