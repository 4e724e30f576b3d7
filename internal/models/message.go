package models

// Message is one spoken line of the avatar.
type Message struct {
	Text             string           `json:"text"`
	FacialExpression FacialExpression `json:"facialExpression"`
	Animation        Animation        `json:"animation"`
}

// Answer is the result of one question. Provider and Model name the endpoint
// that produced it and are not part of the wire format.
type Answer struct {
	Messages []Message `json:"messages"`
	Provider string    `json:"-"`
	Model    string    `json:"-"`
}

// Document is one loaded content source.
type Document struct {
	Name string
	Path string
	Body string
}

// IntroMessages greet a user who has not asked anything yet.
func IntroMessages() []Message {
	return []Message{
		{
			Text:             "Hei! Hvordan har dagen din vært?",
			FacialExpression: ExpressionSmile,
			Animation:        AnimationTalkingOne,
		},
		{
			Text:             "Jeg representerer partiet vårt. Spør meg gjerne om standpunkter og prioriteringer.",
			FacialExpression: ExpressionSmile,
			Animation:        AnimationTalkingThree,
		},
	}
}

// FailureMessages is shown when no provider could answer.
func FailureMessages() []Message {
	return []Message{
		{
			Text:             "Beklager, jeg fikk ikke svart på det. Kan du gjenta eller omformulere spørsmålet?",
			FacialExpression: ExpressionSad,
			Animation:        AnimationIdle,
		},
	}
}

// AnswerLog is what gets recorded about one answered question.
type AnswerLog struct {
	ID           string
	Question     string
	ContextChars int
	Provider     string
	Model        string
	Messages     []Message
	Error        string
}
