package queue

const (
	TypeGenerationRun = "generation:run"
)

type GenerationRunPayload struct {
	JobID string `json:"job_id"`
}
