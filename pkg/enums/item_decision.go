package enums

import "fmt"

// ItemDecision is the choice a seller makes about a pending item.
type ItemDecision string

const (
	ItemDecisionAccept  ItemDecision = "accept"
	ItemDecisionDecline ItemDecision = "decline"
)

// TargetStatus returns the item status the decision leads to.
func (d ItemDecision) TargetStatus() ItemStatus {
	if d == ItemDecisionDecline {
		return ItemStatusDeclined
	}
	return ItemStatusAccepted
}

func (d ItemDecision) IsValid() bool {
	return d == ItemDecisionAccept || d == ItemDecisionDecline
}

// ParseItemDecision converts raw input into an ItemDecision.
func ParseItemDecision(value string) (ItemDecision, error) {
	d := ItemDecision(value)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid item decision %q", value)
	}
	return d, nil
}
