package dap

import (
	"encoding/json"
)

// Message types.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Commands served by the adapter.
const (
	CommandInitialize        = "initialize"
	CommandLaunch            = "launch"
	CommandAttach            = "attach"
	CommandConfigurationDone = "configurationDone"
	CommandSetBreakpoints    = "setBreakpoints"
	CommandThreads           = "threads"
	CommandStackTrace        = "stackTrace"
	CommandScopes            = "scopes"
	CommandVariables         = "variables"
	CommandEvaluate          = "evaluate"
	CommandContinue          = "continue"
	CommandNext              = "next"
	CommandStepIn            = "stepIn"
	CommandStepOut           = "stepOut"
	CommandPause             = "pause"
	CommandDisconnect        = "disconnect"
	CommandTerminate         = "terminate"
)

// Events sent by the adapter.
const (
	EventInitialized = "initialized"
	EventStopped     = "stopped"
	EventContinued   = "continued"
	EventExited      = "exited"
	EventTerminated  = "terminated"
	EventOutput      = "output"
)

// ProtocolMessage is the base for all DAP messages.
type ProtocolMessage struct {
	Seq  int    `json:"seq"`
	Type string `json:"type"` // "request", "response", "event"
}

// Request represents a DAP request.
type Request struct {
	ProtocolMessage
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response represents a DAP response.
type Response struct {
	ProtocolMessage
	RequestSeq int             `json:"request_seq"`
	Success    bool            `json:"success"`
	Command    string          `json:"command"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Event represents a DAP event.
type Event struct {
	ProtocolMessage
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// ErrorResponseBody is the body of a failed response.
type ErrorResponseBody struct {
	Error *ErrorMessage `json:"error,omitempty"`
}

// ErrorMessage contains error details.
type ErrorMessage struct {
	ID        int               `json:"id"`
	Format    string            `json:"format"`
	Variables map[string]string `json:"variables,omitempty"`
	ShowUser  bool              `json:"showUser,omitempty"`
}

// Capabilities describes what features the debug adapter supports.
type Capabilities struct {
	SupportsConfigurationDoneRequest bool `json:"supportsConfigurationDoneRequest,omitempty"`
	SupportsFunctionBreakpoints      bool `json:"supportsFunctionBreakpoints,omitempty"`
	SupportsConditionalBreakpoints   bool `json:"supportsConditionalBreakpoints,omitempty"`
	SupportsEvaluateForHovers        bool `json:"supportsEvaluateForHovers,omitempty"`
	SupportsSetVariable              bool `json:"supportsSetVariable,omitempty"`
	SupportsDelayedStackTraceLoading bool `json:"supportsDelayedStackTraceLoading,omitempty"`
	SupportTerminateDebuggee         bool `json:"supportTerminateDebuggee,omitempty"`
	SupportsTerminateRequest         bool `json:"supportsTerminateRequest,omitempty"`
}

// InitializeRequestArguments are the arguments for the initialize request.
type InitializeRequestArguments struct {
	ClientID               string `json:"clientID,omitempty"`
	ClientName             string `json:"clientName,omitempty"`
	AdapterID              string `json:"adapterID"`
	Locale                 string `json:"locale,omitempty"`
	LinesStartAt1          *bool  `json:"linesStartAt1,omitempty"`
	ColumnsStartAt1        *bool  `json:"columnsStartAt1,omitempty"`
	PathFormat             string `json:"pathFormat,omitempty"`
	SupportsVariableType   bool   `json:"supportsVariableType,omitempty"`
	SupportsVariablePaging bool   `json:"supportsVariablePaging,omitempty"`
}

// SetBreakpointsArguments are the arguments for setBreakpoints.
type SetBreakpointsArguments struct {
	Source         Source             `json:"source"`
	Breakpoints    []SourceBreakpoint `json:"breakpoints,omitempty"`
	Lines          []int              `json:"lines,omitempty"`
	SourceModified bool               `json:"sourceModified,omitempty"`
}

// SetBreakpointsResponseBody is the response body for setBreakpoints.
type SetBreakpointsResponseBody struct {
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// ContinueArguments are the arguments for continue.
type ContinueArguments struct {
	ThreadID     int  `json:"threadId"`
	SingleThread bool `json:"singleThread,omitempty"`
}

// ContinueResponseBody is the response body for continue.
type ContinueResponseBody struct {
	AllThreadsContinued bool `json:"allThreadsContinued"`
}

// StepArguments are the arguments for next, stepIn and stepOut.
type StepArguments struct {
	ThreadID     int    `json:"threadId"`
	SingleThread bool   `json:"singleThread,omitempty"`
	Granularity  string `json:"granularity,omitempty"` // "statement", "line", "instruction"
}

// StackTraceArguments are the arguments for stackTrace.
type StackTraceArguments struct {
	ThreadID   int `json:"threadId"`
	StartFrame int `json:"startFrame,omitempty"`
	Levels     int `json:"levels,omitempty"`
}

// StackTraceResponseBody is the response body for stackTrace.
type StackTraceResponseBody struct {
	StackFrames []StackFrame `json:"stackFrames"`
	TotalFrames int          `json:"totalFrames,omitempty"`
}

// ScopesArguments are the arguments for scopes.
type ScopesArguments struct {
	FrameID int `json:"frameId"`
}

// ScopesResponseBody is the response body for scopes.
type ScopesResponseBody struct {
	Scopes []Scope `json:"scopes"`
}

// VariablesArguments are the arguments for variables.
type VariablesArguments struct {
	VariablesReference int    `json:"variablesReference"`
	Filter             string `json:"filter,omitempty"` // "indexed", "named"
	Start              int    `json:"start,omitempty"`
	Count              int    `json:"count,omitempty"`
}

// VariablesResponseBody is the response body for variables.
type VariablesResponseBody struct {
	Variables []Variable `json:"variables"`
}

// EvaluateArguments are the arguments for evaluate.
type EvaluateArguments struct {
	Expression string `json:"expression"`
	FrameID    int    `json:"frameId,omitempty"`
	Context    string `json:"context,omitempty"` // "watch", "repl", "hover", "clipboard"
}

// EvaluateResponseBody is the response body for evaluate.
type EvaluateResponseBody struct {
	Result             string `json:"result"`
	Type               string `json:"type,omitempty"`
	VariablesReference int    `json:"variablesReference"`
	NamedVariables     int    `json:"namedVariables,omitempty"`
}

// ThreadsResponseBody is the response body for threads.
type ThreadsResponseBody struct {
	Threads []Thread `json:"threads"`
}

// DisconnectArguments are the arguments for disconnect.
type DisconnectArguments struct {
	Restart           bool `json:"restart,omitempty"`
	TerminateDebuggee bool `json:"terminateDebuggee,omitempty"`
}

// Source represents a source file.
type Source struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

// SourceBreakpoint represents a breakpoint in source.
type SourceBreakpoint struct {
	Line      int    `json:"line"`
	Column    int    `json:"column,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// Breakpoint represents a breakpoint as reported back to the client.
type Breakpoint struct {
	ID       int     `json:"id,omitempty"`
	Verified bool    `json:"verified"`
	Message  string  `json:"message,omitempty"`
	Source   *Source `json:"source,omitempty"`
	Line     int     `json:"line,omitempty"`
}

// Thread represents a thread.
type Thread struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// StackFrame represents a stack frame.
type StackFrame struct {
	ID               int     `json:"id"`
	Name             string  `json:"name"`
	Source           *Source `json:"source,omitempty"`
	Line             int     `json:"line"`
	Column           int     `json:"column"`
	PresentationHint string  `json:"presentationHint,omitempty"`
}

// Scope represents a variable scope.
type Scope struct {
	Name               string `json:"name"`
	PresentationHint   string `json:"presentationHint,omitempty"`
	VariablesReference int    `json:"variablesReference"`
	NamedVariables     int    `json:"namedVariables,omitempty"`
	Expensive          bool   `json:"expensive"`
}

// Variable represents a variable or field.
type Variable struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	Type               string `json:"type,omitempty"`
	EvaluateName       string `json:"evaluateName,omitempty"`
	VariablesReference int    `json:"variablesReference"`
	NamedVariables     int    `json:"namedVariables,omitempty"`
}

// StoppedEventBody is the body of the stopped event.
type StoppedEventBody struct {
	Reason            string `json:"reason"` // "step", "breakpoint", "exception", "pause", "entry"
	Description       string `json:"description,omitempty"`
	ThreadID          int    `json:"threadId,omitempty"`
	AllThreadsStopped bool   `json:"allThreadsStopped,omitempty"`
}

// ExitedEventBody is the body of the exited event.
type ExitedEventBody struct {
	ExitCode int `json:"exitCode"`
}

// OutputEventBody is the body of the output event.
type OutputEventBody struct {
	Category string `json:"category,omitempty"` // "console", "stdout", "stderr"
	Output   string `json:"output"`
}
