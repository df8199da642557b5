package schema

// JobMessage is the queue payload that drives the derivative pipeline. It
// carries no derived state so a message can be replayed at any time.
type JobMessage struct {
	PhotoID     string `json:"photoId"`
	OriginalKey string `json:"originalKey"`
}
