package ack

import "strings"

// Kind tags a classified response.
type Kind int

const (
	Unmatched Kind = iota
	KindInitiation
	KindCompletion
)

func (k Kind) String() string {
	switch k {
	case KindInitiation:
		return "initiation"
	case KindCompletion:
		return "completion"
	default:
		return "unmatched"
	}
}

// Response is a network response observed by the transport.
type Response struct {
	URL      string
	Status   int
	MimeType string
	Body     []byte
}

// Initiation acknowledges that the remote accepted a transfer.
type Initiation struct {
	TransferID string
	MaxSize    int64
}

// Valid reports whether the acknowledgment carries both a transfer id and a
// size ceiling.
func (i Initiation) Valid() bool {
	return strings.TrimSpace(i.TransferID) != "" && i.MaxSize > 0
}

// Completion reports the uploaded item's processing state.
type Completion struct {
	// TransferID is empty when the payload does not name its transfer.
	TransferID string
	RemoteID   string
	RemoteURL  string
	State      string
}

// HasReference reports whether the completion carries an addressable reference.
func (c Completion) HasReference() bool {
	return strings.TrimSpace(c.RemoteURL) != ""
}

// Correlates reports whether the completion belongs to the given transfer.
// Payloads without a transfer id are accepted.
func (c Completion) Correlates(transferID string) bool {
	return c.TransferID == "" || c.TransferID == transferID
}

// Signal is the tagged result of classification. Only the field matching Kind
// is meaningful.
type Signal struct {
	Kind       Kind
	Initiation Initiation
	Completion Completion
}

// InitiationSignal wraps an initiation acknowledgment.
func InitiationSignal(i Initiation) Signal {
	return Signal{Kind: KindInitiation, Initiation: i}
}

// CompletionSignal wraps a completion acknowledgment.
func CompletionSignal(c Completion) Signal {
	return Signal{Kind: KindCompletion, Completion: c}
}

// Classifier maps a response to a Signal. Implementations must be pure and
// must return Unmatched for anything they do not recognize.
type Classifier interface {
	Classify(Response) Signal
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(Response) Signal

// Classify implements Classifier.
func (f ClassifierFunc) Classify(r Response) Signal { return f(r) }
