package tracker

import "dividi/internal/core"

// Session identifies the acting user for presentation. It is passed
// explicitly to presenter functions.
type Session struct {
	User string
}

// NewSession validates user against the participant set. An empty user is
// an anonymous session.
func NewSession(participants core.Participants, user string) (Session, error) {
	if user == "" {
		return Session{}, nil
	}
	if err := participants.Validate(user); err != nil {
		return Session{}, err
	}
	return Session{User: user}, nil
}

func (s Session) Is(name string) bool { return s.User != "" && s.User == name }
