package types

// QuestionRequest is one question in a batch lookup request.
type QuestionRequest struct {
	// Name is the domain name to resolve.
	Name string `json:"name"`

	// Type is the record type mnemonic (e.g. "A", "AAAA", "MX").
	Type string `json:"type"`

	// Class is the record class mnemonic; empty means "IN".
	Class string `json:"class,omitempty"`
}

// BatchLookupRequest is the body of the batch lookup endpoint.
type BatchLookupRequest struct {
	Questions []QuestionRequest `json:"questions"`

	// AllowNoAnswer applies the no-answer-tolerant extraction to every
	// question in the batch.
	AllowNoAnswer bool `json:"allow_noanswer,omitempty"`
}
