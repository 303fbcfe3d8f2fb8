package primitives

// ResourceID names one ownable physical subsystem. The set is fixed at
// compile time; the ownership registry rejects anything else.
type ResourceID string

const (
	Drivetrain ResourceID = "drivetrain"
	Shooter    ResourceID = "shooter"
	Intake     ResourceID = "intake"
	Climber    ResourceID = "climber"
)

// AllResources returns every resource in a stable order.
func AllResources() []ResourceID {
	return []ResourceID{Drivetrain, Shooter, Intake, Climber}
}

// Valid reports whether r is one of the enumerated resources.
func (r ResourceID) Valid() bool {
	switch r {
	case Drivetrain, Shooter, Intake, Climber:
		return true
	}
	return false
}

func (r ResourceID) String() string { return string(r) }
