package workflow

// Trigger is an action that may move an invoice between states
type Trigger string

const (
	TriggerPromote    Trigger = "PROMOTE"
	TriggerSendNow    Trigger = "SEND_NOW"
	TriggerMarkPaid   Trigger = "MARK_PAID"
	TriggerMarkUnpaid Trigger = "MARK_UNPAID"
	TriggerVoid       Trigger = "VOID"
	TriggerEdit       Trigger = "EDIT"
	TriggerDelete     Trigger = "DELETE"
)

func (t Trigger) String() string {
	return string(t)
}
