package orders

type Status string

const (
	StatusNew       Status = "new"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

var validNext = map[Status]map[Status]bool{
	StatusNew:       {StatusPending: true, StatusRejected: true},
	StatusPending:   {StatusCompleted: true, StatusRejected: true},
	StatusCompleted: {},
	StatusRejected:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Normalize maps an absent or unrecognized stored status to StatusNew. Legacy
// records written before the status field settled carry "", "null" or free-form
// strings; they are all treated as just-placed orders.
func Normalize(s Status) Status {
	switch s {
	case StatusNew, StatusPending, StatusCompleted, StatusRejected:
		return s
	default:
		return StatusNew
	}
}
