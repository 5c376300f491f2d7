package relicdig

import "errors"

var (
	// ErrReportNotFound is returned when a report folder does not exist or
	// has no readable body.
	ErrReportNotFound = errors.New("relicdig: report not found")

	// ErrTemplateNotFound is returned when a template workbook is missing.
	ErrTemplateNotFound = errors.New("relicdig: template not found")

	// ErrTaskNotFound is returned when a task ID does not exist.
	ErrTaskNotFound = errors.New("relicdig: task not found")

	// ErrTaskAborted is returned when a task was cancelled by request.
	ErrTaskAborted = errors.New("relicdig: task aborted")

	// ErrLLMUnavailable is returned when the LLM provider is unreachable.
	ErrLLMUnavailable = errors.New("relicdig: LLM provider unavailable")

	// ErrLLMRequestFailed is returned when an LLM request fails after retries.
	ErrLLMRequestFailed = errors.New("relicdig: LLM request failed")

	// ErrUnparsableResponse is returned when no recovery strategy can turn an
	// LLM response into valid JSON.
	ErrUnparsableResponse = errors.New("relicdig: unparsable LLM response")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("relicdig: store is closed")

	// ErrNoCredentials is returned when the scheduler is started with an
	// empty credential pool.
	ErrNoCredentials = errors.New("relicdig: no LLM credentials configured")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("relicdig: invalid configuration")
)
