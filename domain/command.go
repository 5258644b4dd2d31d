package domain

// SubmitCommand is a client submission before validation.
// Attachment is either a data URL or raw base64.
type SubmitCommand struct {
	GroupID    string `json:"group_id" validate:"required,max=128,printascii,excludesall=:"`
	Sender     string `json:"sender" validate:"required,max=64"`
	Body       string `json:"body" validate:"required_without=Attachment"`
	Attachment string `json:"attachment,omitempty"`
}

// Stage is the furthest step a submission reached in the ingest pipeline.
type Stage string

const (
	StageReceived  Stage = "RECEIVED"
	StageValidated Stage = "VALIDATED"
	StageModerated Stage = "MODERATED"
	StagePersisted Stage = "PERSISTED"
	StagePublished Stage = "PUBLISHED"
)

// Receipt is returned to the submitter once the message is durable.
type Receipt struct {
	Message  Message  `json:"message"`
	Stage    Stage    `json:"stage"`
	Delivery Delivery `json:"delivery"`
}
