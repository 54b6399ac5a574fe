package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Answer is one of the four option symbols a case can be answered with
type Answer string

const (
	AnswerA Answer = "A"
	AnswerB Answer = "B"
	AnswerC Answer = "C"
	AnswerD Answer = "D"
)

// Answers lists the option symbols in display order
var Answers = []Answer{AnswerA, AnswerB, AnswerC, AnswerD}

// ParseAnswer converts user input into an answer symbol.
// Cyrillic look-alikes of A, B and C are accepted since users often type them by accident.
func ParseAnswer(s string) (Answer, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "А":
		return AnswerA, true
	case "B", "В":
		return AnswerB, true
	case "C", "С":
		return AnswerC, true
	case "D":
		return AnswerD, true
	}
	return "", false
}

// SourceRef points at the catalog message that holds a case's content
type SourceRef struct {
	ChatID    int64
	MessageID int
}

func (r SourceRef) String() string {
	return fmt.Sprintf("%d:%d", r.ChatID, r.MessageID)
}

// ParseSourceRef parses the "<chat>:<message>" form produced by SourceRef.String
func ParseSourceRef(s string) (SourceRef, error) {
	chat, msg, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return SourceRef{}, errors.New("source reference must look like <chat>:<message>")
	}
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return SourceRef{}, fmt.Errorf("invalid chat id in source reference: %w", err)
	}
	messageID, err := strconv.Atoi(msg)
	if err != nil {
		return SourceRef{}, fmt.Errorf("invalid message id in source reference: %w", err)
	}
	if messageID <= 0 {
		return SourceRef{}, errors.New("message id in source reference must be positive")
	}
	return SourceRef{ChatID: chatID, MessageID: messageID}, nil
}

// Case is a single quiz item from the catalog
type Case struct {
	ID      string
	Source  SourceRef
	Correct Answer
}
