package models

// DefaultDailyLimit is the number of cases a new user may solve per day
const DefaultDailyLimit = 5

// User stores a bot user and their lifetime totals
type User struct {
	ID             int64
	Username       string
	DisplayName    string
	DailyLimit     int
	Subscriber     bool
	CasesSeen      int
	CorrectAnswers int
}

// Response stores a single answer given by a user
type Response struct {
	UserID    int64
	CaseID    string
	Answer    Answer
	Correct   bool
	Timestamp int64
}
