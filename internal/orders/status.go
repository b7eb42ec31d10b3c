package orders

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaying    Status = "PAYING"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
)

// IncompleteStatuses are the non-terminal states a stuck order can be in.
// The reconciliation scanner only ever touches orders in one of these.
var IncompleteStatuses = []Status{StatusCreated, StatusPaying}

var validNext = map[Status]map[Status]bool{
	StatusCreated:   {StatusPaying: true, StatusCanceled: true},
	StatusPaying:    {StatusCompleted: true, StatusCanceled: true},
	StatusCompleted: {},
	StatusCanceled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Transition returns the target state, or ErrIllegalOrderState if the
// state machine does not permit the move.
func (s Status) Transition(to Status) (Status, error) {
	if !CanTransition(s, to) {
		return s, illegalTransition(s, to)
	}
	return to, nil
}
