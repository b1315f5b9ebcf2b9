package errors

// codeInfo is what the CLI knows about a fallback code: whether retrying
// can help, what went wrong, and the command that usually fixes it.
type codeInfo struct {
	retryable bool
	desc      string
	action    string
}

var codeTable = map[ErrorCode]codeInfo{
	ErrTimeout:          {true, "LLM request exceeded its time limit", "Raise the limit: sched config set llm.timeout 60s"},
	ErrRateLimit:        {true, "LLM provider rate limit or quota exceeded", "Wait and retry, or check the quota of the configured API key"},
	ErrModelUnavailable: {true, "LLM provider or model unavailable", "Check llm.base_url and llm.model: sched config show"},
	ErrAuthFailed:       {false, "LLM provider rejected the API key", "Store a valid key: sched auth set-key"},
	ErrContextCancelled: {false, "Operation cancelled by user or system", "Nothing to do if the interrupt was intended"},
	ErrEmptyResponse:    {false, "LLM returned no reformatted text", "Inspect the transcript; it may contain no bookings"},
	ErrContentTooLarge:  {false, "Transcript exceeds the LLM input limit", "Lower llm.max_input_chars or split the transcript"},
	ErrNoRecords:        {false, "Reformatted text yielded no bookings", "Run with --debug to see the reformatted text"},
	ErrNotAvailable:     {false, "No LLM reformatter is configured", "Set an API key with sched auth set-key or use --engine classic"},
	ErrProcessingError:  {false, "Unclassified fallback error", "Re-run with --debug and check the logs"},
}

// Known reports whether c is one of the codes above.
func (c ErrorCode) Known() bool {
	_, ok := codeTable[c]
	return ok
}

// Retryable reports whether the failure is usually transient.
func (c ErrorCode) Retryable() bool {
	return codeTable[c].retryable
}

func (c ErrorCode) Description() string {
	if info, ok := codeTable[c]; ok {
		return info.desc
	}
	return "Unknown error"
}

// SuggestedAction is printed next to a fallback warning.
func (c ErrorCode) SuggestedAction() string {
	if info, ok := codeTable[c]; ok {
		return info.action
	}
	return codeTable[ErrProcessingError].action
}

// IsRetryable is shorthand for code.Retryable().
func IsRetryable(code ErrorCode) bool {
	return code.Retryable()
}
