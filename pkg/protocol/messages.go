package protocol

// Message type tags.
const (
	TypeError          = "Error"
	TypeClassInfo      = "ClassInfo"
	TypeRootClass      = "RootClass"
	TypeModelStructure = "ModelStructure"
	TypeFunctionInfo   = "FunctionInfo"
	TypeSubscribe      = "Subscribe"
	TypeUnsubscribe    = "Unsubscribe"
	TypeRun            = "Run"
	TypeVariableUpdate = "VariableUpdate"
)

// ReplyOK is the data of a successful command reply.
const ReplyOK = "OK"

// ErrorData is the payload of an Error envelope.
type ErrorData struct {
	Message string `json:"message"`
}

// NewError builds the structured error reply.
func NewError(message string) Envelope {
	return MustEnvelope(TypeError, ErrorData{Message: message})
}

// OK builds the acknowledgement reply for a command of the given type.
func OK(typ string) Envelope {
	return MustEnvelope(typ, ReplyOK)
}

// RootClassRequest selects the root class by name (case-insensitive).
type RootClassRequest struct {
	Name string `json:"name"`
}

// SubscribeRequest lists qualified variable names. For Unsubscribe an empty
// list drops every subscription of the connection.
type SubscribeRequest struct {
	Variables []string `json:"variables"`
}

// RunRequest invokes an operation of the root instance Steps times.
type RunRequest struct {
	Function string `json:"function"`
	Steps    int    `json:"steps,omitempty"`
}

// FunctionInfo describes one operation of the root class.
type FunctionInfo struct {
	Name    string   `json:"name"`
	Params  []string `json:"params"`
	Results []string `json:"results"`
}

// VariableUpdate is pushed to subscribers after each run step.
type VariableUpdate struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Step  int    `json:"step"`
}
