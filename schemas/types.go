package schemas

// Transfer memo actions.
const (
	ActionStake     = "STAKE"
	ActionAddReward = "ADD_REWARD"
)

// TransferMemo routes an inbound token transfer to a farm.
type TransferMemo struct {
	Action string `json:"action"`
	FarmID uint64 `json:"farm_id"`
}

// Validate checks the action is one the ledger understands.
func (m TransferMemo) Validate() error {
	switch m.Action {
	case ActionStake, ActionAddReward:
		return nil
	case "":
		return &ValidationError{Field: "action", Message: "action is required"}
	}
	return &ValidationError{Field: "action", Message: "unknown action " + m.Action}
}

// String renders the memo in its wire form.
func (m TransferMemo) String() string {
	return m.Action + ":" + formatUint(m.FarmID)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}
