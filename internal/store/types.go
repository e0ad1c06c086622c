package store

import "time"

// DescriptorKind tags what a value descriptor points at.
type DescriptorKind int

const (
	// DescriptorNone is an absent value or None.
	DescriptorNone DescriptorKind = iota
	// DescriptorInstance is an instance of the class defined at Path:Line.
	DescriptorInstance
	// DescriptorDefinition is the class or function defined at Path:Line.
	DescriptorDefinition
	// DescriptorBuiltin is an instance of the builtin class named Builtin.
	DescriptorBuiltin
)

var descriptorKindNames = [...]string{
	DescriptorNone:       "none",
	DescriptorInstance:   "instance",
	DescriptorDefinition: "definition",
	DescriptorBuiltin:    "builtin",
}

func (k DescriptorKind) String() string {
	if k >= 0 && int(k) < len(descriptorKindNames) {
		return descriptorKindNames[k]
	}
	return "invalid"
}

// Descriptor locates a runtime value well enough to rebuild it from source.
type Descriptor struct {
	Kind    DescriptorKind `json:"kind"`
	Path    string         `json:"path,omitempty"`
	Line    int            `json:"line,omitempty"`
	Builtin string         `json:"builtin,omitempty"`
}

// CallRecord is what one traced call of the function defined at Path:Line
// received and returned.
type CallRecord struct {
	Path       string
	Line       int
	RunID      int64
	Args       []Descriptor
	Return     Descriptor
	RecordedAt time.Time
}

// Run is one traced execution of a module.
type Run struct {
	ID          int64
	ModulePath  string
	StartedAt   time.Time
	FinishedAt  *time.Time
	ExitCode    *int
	RecordCount int
}
