package models

const (
	// ContextSeparator joins retrieved chunks into one context string.
	ContextSeparator = "\n---\n"
	// DocumentSeparator joins documents into the corpus.
	DocumentSeparator = "\n\n---\n\n"
	// MaxMessages caps the number of messages in one answer.
	MaxMessages = 3

	ApologyText = "Beklager, jeg fikk ikke formulert et svar."
)

type FacialExpression string

const (
	ExpressionSmile     FacialExpression = "smile"
	ExpressionSad       FacialExpression = "sad"
	ExpressionAngry     FacialExpression = "angry"
	ExpressionSurprised FacialExpression = "surprised"
	ExpressionFunnyFace FacialExpression = "funnyFace"
	ExpressionDefault   FacialExpression = "default"
)

// FacialExpressions lists the allowed expressions in prompt order.
var FacialExpressions = []FacialExpression{
	ExpressionSmile,
	ExpressionSad,
	ExpressionAngry,
	ExpressionSurprised,
	ExpressionFunnyFace,
	ExpressionDefault,
}

type Animation string

const (
	AnimationIdle                Animation = "Idle"
	AnimationTalkingOne          Animation = "TalkingOne"
	AnimationTalkingThree        Animation = "TalkingThree"
	AnimationSadIdle             Animation = "SadIdle"
	AnimationDefeated            Animation = "Defeated"
	AnimationAngry               Animation = "Angry"
	AnimationSurprised           Animation = "Surprised"
	AnimationDismissingGesture   Animation = "DismissingGesture"
	AnimationThoughtfulHeadShake Animation = "ThoughtfulHeadShake"
)

var Animations = []Animation{
	AnimationIdle,
	AnimationTalkingOne,
	AnimationTalkingThree,
	AnimationSadIdle,
	AnimationDefeated,
	AnimationAngry,
	AnimationSurprised,
	AnimationDismissingGesture,
	AnimationThoughtfulHeadShake,
}

const (
	// DefaultExpression and DefaultAnimation replace values outside the enums.
	DefaultExpression = ExpressionDefault
	DefaultAnimation  = AnimationTalkingOne
)

func (e FacialExpression) Valid() bool {
	for _, v := range FacialExpressions {
		if v == e {
			return true
		}
	}
	return false
}

func (a Animation) Valid() bool {
	for _, v := range Animations {
		if v == a {
			return true
		}
	}
	return false
}
