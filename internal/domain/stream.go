package domain

// StreamToken is a single fragment of a streamed answer. Done marks the
// terminal token; Err, when set, ends the stream with a failure.
type StreamToken struct {
	Content string
	Done    bool
	Err     error
}

// AnswerStream delivers answer fragments in generation order. It is
// finite and non-restartable: the producer closes the channel after the
// terminal token.
type AnswerStream <-chan StreamToken
