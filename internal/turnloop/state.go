package turnloop

// State is one node of the turn loop's state machine. Generalizes the
// teacher's AgenticLoop (Init -> Stream -> ExecuteTools -> Complete/
// Continue) into the richer eight-state machine the engine specifies,
// with Approving/Executing as sub-states entered per tool call while the
// top-level state sits at ResolvingToolCalls.
type State string

const (
	StateIdle               State = "idle"
	StateBuildingRequest     State = "building_request"
	StateAwaitingModel       State = "awaiting_model"
	StateStreamingAssistant  State = "streaming_assistant"
	StateResolvingToolCalls  State = "resolving_tool_calls"
	StateAppendToolResults   State = "append_tool_results"
	StateFinalising          State = "finalising"
	StateRecordUsage         State = "record_usage"
)

// toolSubState names the Approving/Executing phases of one tool call's
// dispatch (awaitApproval, then Registry.Execute) under
// StateResolvingToolCalls. The driver does not record them; State
// reports only the top-level state.
type toolSubState string

const (
	subApproving toolSubState = "approving"
	subExecuting toolSubState = "executing"
)
